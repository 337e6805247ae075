package rpc

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/casa.report/internal/api"
	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/jobfile"
	"github.com/banshee-data/casa.report/internal/testutil"
)

const bufSize = 1 << 20

// startServer runs a MetricsService over an in-memory listener and
// returns a connected client.
func startServer(t *testing.T, srv MetricsServiceServer) *Client {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	gs := NewGRPCServer(srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func newStoreBackedClient(t *testing.T) *Client {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "rpc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return startServer(t, NewServer(api.NewAnalyzer(store), store))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestCompute_RoundTrip(t *testing.T) {
	t.Parallel()
	c := newStoreBackedClient(t)
	ctx := context.Background()

	rec, err := c.ComputeJob(ctx, &jobfile.Job{
		Filename:     "grpc.json",
		Trajectories: testutil.MixedPopulation(3),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.JobID)
	assert.Equal(t, "grpc.json", rec.Filename)
	assert.Equal(t, db.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Report)
	assert.Equal(t, 7, rec.Report.Count)
	assert.Equal(t, 3, rec.Report.Motility.ProgressiveCount)
	assert.Len(t, rec.Report.Trajectories, 7)

	got, err := c.GetAnalysis(ctx, mustStruct(t, map[string]any{"job_id": rec.JobID}))
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, got.GetFields()["job_id"].GetStringValue())
	report := got.GetFields()["report"].GetStructValue()
	assert.Equal(t, 7.0, report.GetFields()["count"].GetNumberValue())
}

func TestCompute_NumericTrackIDs(t *testing.T) {
	t.Parallel()
	c := newStoreBackedClient(t)

	req := mustStruct(t, map[string]any{
		"trajectories": []any{
			map[string]any{"id": 12, "samples": []any{
				map[string]any{"frame": 0, "x": 0, "y": 0},
				map[string]any{"frame": 30, "x": 10, "y": 0},
			}},
		},
	})
	out, err := c.Compute(context.Background(), req)
	require.NoError(t, err)
	tracks := out.GetFields()["report"].GetStructValue().GetFields()["trajectories"].GetListValue().GetValues()
	require.Len(t, tracks, 1)
	assert.Equal(t, "12", tracks[0].GetStructValue().GetFields()["id"].GetStringValue())
}

func TestCompute_ErrorCodes(t *testing.T) {
	t.Parallel()
	c := newStoreBackedClient(t)

	tests := []struct {
		name string
		req  map[string]any
		want codes.Code
	}{
		{
			name: "missing trajectories",
			req:  map[string]any{"filename": "x"},
			want: codes.InvalidArgument,
		},
		{
			name: "bad params",
			req:  map[string]any{"params": map[string]any{"frame_rate": 0}, "trajectories": []any{}},
			want: codes.InvalidArgument,
		},
		{
			name: "bad trajectory",
			req: map[string]any{"trajectories": []any{
				map[string]any{"id": "a", "samples": []any{}},
			}},
			want: codes.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.Compute(context.Background(), mustStruct(t, tt.req))
			assert.Equal(t, tt.want, status.Code(err), "err = %v", err)
		})
	}
}

func TestGetAnalysis_Errors(t *testing.T) {
	t.Parallel()
	c := newStoreBackedClient(t)
	ctx := context.Background()

	_, err := c.GetAnalysis(ctx, mustStruct(t, map[string]any{"job_id": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.GetAnalysis(ctx, mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	noStore := startServer(t, NewServer(api.NewAnalyzer(nil), nil))
	_, err = noStore.GetAnalysis(ctx, mustStruct(t, map[string]any{"job_id": "x"}))
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

type erroringAnalyzer struct{ err error }

func (a erroringAnalyzer) Analyze(context.Context, *jobfile.Job) (*db.Analysis, error) {
	return nil, a.err
}

func TestToStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"parameter", &casa.ParameterError{Field: "frame_rate", Reason: "must be > 0"}, codes.InvalidArgument},
		{"trajectory", &casa.TrajectoryError{ID: "a", Reason: "no samples"}, codes.InvalidArgument},
		{"not found", db.ErrNotFound, codes.NotFound},
		{"canceled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("disk full"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err)))
		})
	}
}

func TestCompute_InternalErrorHidesDetail(t *testing.T) {
	t.Parallel()
	c := startServer(t, NewServer(erroringAnalyzer{err: errors.New("disk full")}, nil))

	_, err := c.Compute(context.Background(), mustStruct(t, map[string]any{"trajectories": []any{}}))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "disk full")
}
