package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/extract"
)

// Extractor is the part of extract.Service the transports need.
type Extractor interface {
	IsExtractable(f extract.SourceFile) bool
	Extract(ctx context.Context, f extract.SourceFile) extract.Outcome
}

// ExtractionServer is served as doctext.v1.ExtractionService. Requests and
// responses are google.protobuf.Struct so no generated stubs are needed.
type ExtractionServer interface {
	Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	IsExtractable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type ExtractionService struct {
	svc      Extractor
	maxBytes int64
	logger   *slog.Logger
}

func NewExtractionService(svc Extractor, maxBytes int64, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{svc: svc, maxBytes: maxBytes, logger: logger}
}

// Extract takes {name, media_type, content(base64)} and returns
// {text, status, diagnostics}.
func (s *ExtractionService) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	if err := validate(extractSchema, m); err != nil {
		s.logger.Warn("extract request rejected", "error", err)
		return nil, common.InvalidArgumentError(err.Error())
	}
	data, err := base64.StdEncoding.DecodeString(req.GetFields()["content"].GetStringValue())
	if err != nil {
		return nil, common.InvalidArgumentErrorf("content must be base64: %v", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, status.Errorf(codes.ResourceExhausted, "content exceeds %d bytes", s.maxBytes)
	}

	f := extract.SourceFile{
		Name:      req.GetFields()["name"].GetStringValue(),
		MediaType: req.GetFields()["media_type"].GetStringValue(),
		Data:      data,
	}
	out := s.svc.Extract(ctx, f)
	resp, err := outcomeStruct(out)
	if err != nil {
		s.logger.Error("encode extract response", "name", f.Name, "error", err)
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return resp, nil
}

func (s *ExtractionService) IsExtractable(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	if err := validate(extractableSchema, m); err != nil {
		return nil, common.InvalidArgumentError(err.Error())
	}
	f := extract.SourceFile{
		Name:      req.GetFields()["name"].GetStringValue(),
		MediaType: req.GetFields()["media_type"].GetStringValue(),
	}
	return structpb.NewStruct(map[string]any{
		"extractable": s.svc.IsExtractable(f),
		"format":      string(extract.Classify(f)),
	})
}

// outcomeStruct renders an Outcome through its JSON tags.
func outcomeStruct(out extract.Outcome) (*structpb.Struct, error) {
	b, err := json.Marshal(out.Diagnostics)
	if err != nil {
		return nil, err
	}
	var diag map[string]any
	if err := json.Unmarshal(b, &diag); err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"text":        out.Text,
		"status":      string(out.Status()),
		"diagnostics": diag,
	})
}

// unaryHandler adapts a Struct-in, Struct-out method to grpc.MethodHandler.
func unaryHandler[S any](method string, call func(srv S, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

const (
	extractionServiceName = "doctext.v1.ExtractionService"
	extractMethod         = "/" + extractionServiceName + "/Extract"
	isExtractableMethod   = "/" + extractionServiceName + "/IsExtractable"
)

var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: extractionServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Extract",
			Handler: unaryHandler(extractMethod, func(srv ExtractionServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.Extract(ctx, in)
			}),
		},
		{
			MethodName: "IsExtractable",
			Handler: unaryHandler(isExtractableMethod, func(srv ExtractionServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.IsExtractable(ctx, in)
			}),
		},
	},
	Metadata: "doctext/v1/extraction.proto",
}

func RegisterExtractionServer(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ExtractionServiceDesc, srv)
}

// ExtractionClient calls a remote ExtractionService.
type ExtractionClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionClient(cc grpc.ClientConnInterface) *ExtractionClient {
	return &ExtractionClient{cc: cc}
}

func (c *ExtractionClient) Extract(ctx context.Context, name, mediaType string, data []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"name":       name,
		"media_type": mediaType,
		"content":    base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, extractMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExtractionClient) IsExtractable(ctx context.Context, name, mediaType string, opts ...grpc.CallOption) (bool, error) {
	in, err := structpb.NewStruct(map[string]any{"name": name, "media_type": mediaType})
	if err != nil {
		return false, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, isExtractableMethod, in, out, opts...); err != nil {
		return false, err
	}
	return out.GetFields()["extractable"].GetBoolValue(), nil
}
