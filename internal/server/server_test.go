package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/export"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// upperExtractor returns the uploaded bytes upper-cased for supported files.
type upperExtractor struct{}

func (upperExtractor) IsExtractable(f extract.SourceFile) bool { return extract.IsExtractable(f) }

func (upperExtractor) Extract(_ context.Context, f extract.SourceFile) extract.Outcome {
	d := extract.Diagnostics{Name: f.Name, Format: extract.Classify(f), Method: constants.MethodNone}
	if !extract.IsExtractable(f) {
		return extract.Outcome{Diagnostics: d}
	}
	text := strings.ToUpper(string(f.Data))
	if text != "" {
		d.Method = constants.MethodPDFText
	}
	d.Chars = len(text)
	return extract.Outcome{Text: text, Diagnostics: d}
}

func ledger(t *testing.T) (*repository.DB, repository.AttemptRepository) {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: "file::memory:"}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db, repository.NewAttemptRepository(db, quietLogger())
}

func dialBufconn(t *testing.T, register func(*grpc.Server)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	register(s)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPC_Extract(t *testing.T) {
	conn := dialBufconn(t, func(s *grpc.Server) {
		RegisterExtractionServer(s, NewExtractionService(upperExtractor{}, 1024, quietLogger()))
	})
	client := NewExtractionClient(conn)
	ctx := context.Background()

	resp, err := client.Extract(ctx, "a.pdf", "application/pdf", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", resp.GetFields()["text"].GetStringValue())
	assert.Equal(t, "TEXT_OK", resp.GetFields()["status"].GetStringValue())
	diag := resp.GetFields()["diagnostics"].GetStructValue().GetFields()
	assert.Equal(t, "PDF", diag["format"].GetStringValue())
	assert.Equal(t, float64(5), diag["chars"].GetNumberValue())

	resp, err = client.Extract(ctx, "notes.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "", resp.GetFields()["text"].GetStringValue())
	assert.Equal(t, "EMPTY", resp.GetFields()["status"].GetStringValue())

	_, err = client.Extract(ctx, "big.pdf", "", bytes.Repeat([]byte("x"), 2048))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	ok, err := client.IsExtractable(ctx, "sheet.xlsx", "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.IsExtractable(ctx, "notes.txt", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGRPC_ExtractRejectsBadRequests(t *testing.T) {
	conn := dialBufconn(t, func(s *grpc.Server) {
		RegisterExtractionServer(s, NewExtractionService(upperExtractor{}, 0, quietLogger()))
	})
	ctx := context.Background()

	cases := map[string]map[string]any{
		"missing content": {"name": "a.pdf"},
		"empty name":      {"name": "", "content": ""},
		"unknown field":   {"name": "a.pdf", "content": "", "extra": true},
		"bad base64":      {"name": "a.pdf", "content": "%%%"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			in, err := structpb.NewStruct(req)
			require.NoError(t, err)
			err = conn.Invoke(ctx, extractMethod, in, new(structpb.Struct))
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestGRPC_Ledger(t *testing.T) {
	_, attempts := ledger(t)
	ctx := context.Background()
	a, err := attempts.Start(ctx, "abc", "a.pdf", constants.PDF)
	require.NoError(t, err)
	require.NoError(t, attempts.Finish(ctx, a.ID, repository.Outcome{Method: constants.MethodPDFText, Status: constants.AttemptStatusTextOK, Chars: 3}))

	conn := dialBufconn(t, func(s *grpc.Server) {
		RegisterLedgerServer(s, NewLedgerService(attempts, export.NewService(attempts, quietLogger()), quietLogger()))
	})

	in, _ := structpb.NewStruct(map[string]any{"status": "TEXT_OK"})
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, listAttemptsMethod, in, out))
	assert.Equal(t, float64(1), out.GetFields()["count"].GetNumberValue())
	first := out.GetFields()["attempts"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	assert.Equal(t, a.ID.String(), first["id"].GetStringValue())

	in, _ = structpb.NewStruct(map[string]any{"status": "DONE"})
	err = conn.Invoke(ctx, listAttemptsMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	in, _ = structpb.NewStruct(map[string]any{"since": "yesterday"})
	err = conn.Invoke(ctx, listAttemptsMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	in, _ = structpb.NewStruct(map[string]any{})
	out = new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, exportAttemptsMethod, in, out))
	raw, err := base64.StdEncoding.DecodeString(out.GetFields()["xlsx"].GetStringValue())
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Extractions")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGRPC_GetAttempt(t *testing.T) {
	_, attempts := ledger(t)
	ctx := context.Background()
	a, err := attempts.Start(ctx, "abc", "scan.png", constants.IMAGE)
	require.NoError(t, err)

	conn := dialBufconn(t, func(s *grpc.Server) {
		RegisterLedgerServer(s, NewLedgerService(attempts, export.NewService(attempts, quietLogger()), quietLogger()))
	})

	in, _ := structpb.NewStruct(map[string]any{"id": a.ID.String()})
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, getAttemptMethod, in, out))
	got := out.GetFields()["attempt"].GetStructValue().GetFields()
	assert.Equal(t, "scan.png", got["name"].GetStringValue())
	assert.Equal(t, "RUNNING", got["status"].GetStringValue())

	in, _ = structpb.NewStruct(map[string]any{"id": "42"})
	err = conn.Invoke(ctx, getAttemptMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	in, _ = structpb.NewStruct(map[string]any{"id": uuid.NewString()})
	err = conn.Invoke(ctx, getAttemptMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHTTP_GetAttempt(t *testing.T) {
	_, attempts := ledger(t)
	ctx := context.Background()
	a, err := attempts.Start(ctx, "abc", "book.xlsx", constants.SPREADSHEET)
	require.NoError(t, err)

	srv := httptest.NewServer(NewHTTPHandler(HTTPDeps{Extractor: upperExtractor{}, Attempts: attempts, Logger: quietLogger()}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/attempts/" + a.ID.String())
	require.NoError(t, err)
	var got repository.Attempt
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, constants.SPREADSHEET, got.Format)

	resp, err = http.Get(srv.URL + "/v1/attempts/not-a-uuid")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "must be a valid UUID")
	assert.NotEmpty(t, body["request_id"])

	resp, err = http.Get(srv.URL + "/v1/attempts/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHTTP_Extract(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(HTTPDeps{Extractor: upperExtractor{}, MaxUploadBytes: 1024, Logger: quietLogger()}))
	defer srv.Close()

	body, ct := multipartBody(t, "report.pdf", "application/pdf", []byte("page one"))
	resp, err := http.Post(srv.URL+"/v1/extract", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Text        string              `json:"text"`
		Status      string              `json:"status"`
		Diagnostics extract.Diagnostics `json:"diagnostics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "PAGE ONE", got.Text)
	assert.Equal(t, "TEXT_OK", got.Status)
	assert.Equal(t, constants.PDF, got.Diagnostics.Format)

	body, ct = multipartBody(t, "report.pdf", "application/pdf", []byte("plain"))
	resp2, err := http.Post(srv.URL+"/v1/extract?format=text", ct, body)
	require.NoError(t, err)
	defer resp2.Body.Close()
	b, _ := io.ReadAll(resp2.Body)
	assert.Equal(t, "PLAIN", string(b))
	assert.Equal(t, "TEXT_OK", resp2.Header.Get("X-Extraction-Status"))
}

func TestHTTP_ExtractRejects(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(HTTPDeps{Extractor: upperExtractor{}, MaxUploadBytes: 16, Logger: quietLogger()}))
	defer srv.Close()

	body, ct := multipartBody(t, "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 64))
	resp, err := http.Post(srv.URL+"/v1/extract", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/extract", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Extractable(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(HTTPDeps{Extractor: upperExtractor{}, Logger: quietLogger()}))
	defer srv.Close()

	post := func(body string) (*http.Response, map[string]any) {
		resp, err := http.Post(srv.URL+"/v1/extractable", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var m map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&m)
		return resp, m
	}

	resp, m := post(`{"name":"scan.HEIC"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, m["extractable"])
	assert.Equal(t, "IMAGE", m["format"])

	_, m = post(`{"name":"x.bin","media_type":"application/pdf"}`)
	assert.Equal(t, true, m["extractable"])

	resp, _ = post(`{"media_type":"application/pdf"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_HealthAndAttempts(t *testing.T) {
	db, attempts := ledger(t)
	ctx := context.Background()
	a, err := attempts.Start(ctx, "abc", "a.docx", constants.WORD)
	require.NoError(t, err)
	require.NoError(t, attempts.Fail(ctx, a.ID, "boom"))

	srv := httptest.NewServer(NewHTTPHandler(HTTPDeps{
		Extractor: upperExtractor{},
		Attempts:  attempts,
		Exports:   export.NewService(attempts, quietLogger()),
		DB:        db,
		Logger:    quietLogger(),
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/attempts?status=FAILED&limit=10")
	require.NoError(t, err)
	var list struct {
		Attempts []repository.Attempt `json:"attempts"`
		Count    int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "boom", *list.Attempts[0].ErrorMessage)

	resp, err = http.Get(srv.URL + "/v1/attempts?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	since := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	resp, err = http.Get(srv.URL + "/v1/attempts?since=" + since)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Equal(t, 0, list.Count)

	resp, err = http.Get(srv.URL + "/v1/attempts/export.xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
}

type downDB struct{}

func (downDB) HealthCheck(context.Context, time.Duration) error { return assert.AnError }

func TestHTTP_HealthDown(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(HTTPDeps{Extractor: upperExtractor{}, DB: downDB{}, Logger: quietLogger()}))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/attempts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
