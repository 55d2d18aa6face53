package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/export"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

// LedgerServer is served as doctext.v1.LedgerService.
type LedgerServer interface {
	ListAttempts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ExportAttempts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAttempt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type LedgerService struct {
	attempts repository.AttemptRepository
	exports  *export.Service
	logger   *slog.Logger
}

func NewLedgerService(attempts repository.AttemptRepository, exports *export.Service, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{attempts: attempts, exports: exports, logger: logger}
}

// attemptQuery is the decoded form of a ListAttempts/ExportAttempts request.
type attemptQuery struct {
	filter repository.ListFilter
	since  time.Time
}

func parseAttemptQuery(m map[string]any) (attemptQuery, error) {
	var q attemptQuery
	if err := validate(attemptsSchema, m); err != nil {
		return q, err
	}
	if v, ok := m["status"].(string); ok {
		q.filter.Status = constants.AttemptStatus(v)
	}
	if v, ok := m["format"].(string); ok {
		q.filter.Format = constants.Format(v)
	}
	if v, ok := m["limit"].(float64); ok {
		q.filter.Limit = int(v)
	}
	if v, ok := m["offset"].(float64); ok {
		q.filter.Offset = int(v)
	}
	if v, ok := m["since"].(string); ok {
		// the schema already checked the format
		q.since, _ = time.Parse(time.RFC3339, v)
	}
	return q, nil
}

func (s *LedgerService) ListAttempts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := parseAttemptQuery(req.AsMap())
	if err != nil {
		return nil, common.InvalidArgumentError(err.Error())
	}
	rows, err := s.attempts.List(ctx, q.filter)
	if err != nil {
		s.logger.Error("ledger.list.failed", "err", err)
		return nil, status.Error(common.GRPCCode(err), err.Error())
	}
	kept := make([]repository.Attempt, 0, len(rows))
	for _, a := range rows {
		if q.since.IsZero() || !a.StartedAt.Before(q.since) {
			kept = append(kept, a)
		}
	}
	list, err := jsonValue(kept)
	if err != nil {
		return nil, common.InternalErrorf("encode attempts: %v", err)
	}
	return structpb.NewStruct(map[string]any{"attempts": list, "count": len(kept)})
}

// GetAttempt returns one ledger row by id.
func (s *LedgerService) GetAttempt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if err := common.ValidateAndReturnError(common.NewValidator().Field("id", id, common.Required, common.UUID)); err != nil {
		return nil, err
	}
	a, err := s.attempts.Get(ctx, uuid.MustParse(id))
	if repository.IsNotFound(err) {
		return nil, common.NotFoundError(err.Error())
	}
	if err != nil {
		s.logger.Error("ledger.get.failed", "attempt_id", id, "err", err)
		return nil, status.Error(common.GRPCCode(err), err.Error())
	}
	v, err := jsonValue(a)
	if err != nil {
		return nil, common.InternalErrorf("encode attempt: %v", err)
	}
	return structpb.NewStruct(map[string]any{"attempt": v})
}

// jsonValue round-trips v through encoding/json so structpb sees only
// maps, slices, strings, numbers and bools.
func jsonValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) ExportAttempts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := parseAttemptQuery(req.AsMap())
	if err != nil {
		return nil, common.InvalidArgumentError(err.Error())
	}
	xlsx, err := s.exports.ExportAttemptsXLSX(ctx, q.filter, q.since)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "err", err)
		return nil, status.Error(common.GRPCCode(err), err.Error())
	}
	return structpb.NewStruct(map[string]any{"xlsx": base64.StdEncoding.EncodeToString(xlsx)})
}

const (
	ledgerServiceName    = "doctext.v1.LedgerService"
	listAttemptsMethod   = "/" + ledgerServiceName + "/ListAttempts"
	exportAttemptsMethod = "/" + ledgerServiceName + "/ExportAttempts"
	getAttemptMethod     = "/" + ledgerServiceName + "/GetAttempt"
)

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListAttempts",
			Handler: unaryHandler(listAttemptsMethod, func(srv LedgerServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.ListAttempts(ctx, in)
			}),
		},
		{
			MethodName: "ExportAttempts",
			Handler: unaryHandler(exportAttemptsMethod, func(srv LedgerServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.ExportAttempts(ctx, in)
			}),
		},
		{
			MethodName: "GetAttempt",
			Handler: unaryHandler(getAttemptMethod, func(srv LedgerServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.GetAttempt(ctx, in)
			}),
		},
	},
	Metadata: "doctext/v1/ledger.proto",
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}
