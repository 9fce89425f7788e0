package remote_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/plansync/internal/models"
	"github.com/starford/plansync/internal/remote"
	"github.com/starford/plansync/internal/remote/remotetest"
)

const docPath = remote.DefaultPath

func newClient(srv *remotetest.Server, token string) *remote.Client {
	return remote.New(remote.Config{
		BaseURL: srv.URL,
		Owner:   "alice",
		Repo:    "research",
		Token:   token,
		Now:     func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) },
	})
}

func sampleDoc() *models.ProjectDocument {
	doc := models.DefaultDocument(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	doc.ProjectName = "蛋白质折叠"
	doc.Tasks = append(doc.Tasks, models.Task{ID: "t1", Title: "文献综述", Progress: 40,
		Subtasks: []models.Subtask{{ID: "s1", Title: "read", Completed: true}}})
	doc.Files = append(doc.Files, models.NewFileRecord("a.pdf", 2048, nil, "2024-03-01"))
	return doc
}

func TestPutThenGetRoundTrip(t *testing.T) {
	srv := remotetest.New(t, "secret")
	c := newClient(srv, "secret")
	ctx := context.Background()

	doc := sampleDoc()
	rev, err := c.Put(ctx, docPath, doc, remote.RevisionToken{})
	require.NoError(t, err)
	require.False(t, rev.IsZero())

	snap, err := c.Get(ctx, docPath)
	require.NoError(t, err)
	require.True(t, rev.Equal(snap.Revision))
	require.Equal(t, doc, snap.Document)

	puts := srv.Puts()
	require.Len(t, puts, 1)
	require.Empty(t, puts[0].SHA, "create must omit sha")
	require.Contains(t, puts[0].Message, "更新项目数据 - ")
}

func TestGetMissingIsNotFound(t *testing.T) {
	srv := remotetest.New(t, "")
	c := newClient(srv, "")
	_, err := c.Get(context.Background(), docPath)
	require.ErrorIs(t, err, remote.ErrNotFound)
	require.Equal(t, remote.KindNotFound, remote.KindOf(err))
}

func TestPutStaleRevisionConflicts(t *testing.T) {
	srv := remotetest.New(t, "")
	c := newClient(srv, "tok")
	ctx := context.Background()

	first, err := c.Put(ctx, docPath, sampleDoc(), remote.RevisionToken{})
	require.NoError(t, err)

	// Someone else writes in between.
	srv.SetFile(docPath, []byte(`{"projectName":"other"}`))
	before, _ := srv.File(docPath)

	_, err = c.Put(ctx, docPath, sampleDoc(), first)
	require.ErrorIs(t, err, remote.ErrConflict)
	after, _ := srv.File(docPath)
	require.Equal(t, before, after, "conflicting put must not modify the stored document")

	// Creating over an existing file without a sha is a conflict too.
	_, err = c.Put(ctx, docPath, sampleDoc(), remote.RevisionToken{})
	require.ErrorIs(t, err, remote.ErrConflict)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		header map[string]string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"Bad credentials"}`, nil, remote.ErrUnauthenticated},
		{"rate limit body", http.StatusForbidden, `{"message":"API rate limit exceeded for user"}`, nil, remote.ErrRateLimited},
		{"rate limit header", http.StatusForbidden, `{"message":"nope"}`, map[string]string{"X-RateLimit-Remaining": "0"}, remote.ErrRateLimited},
		{"forbidden", http.StatusForbidden, `{"message":"Resource not accessible"}`, nil, remote.ErrForbidden},
		{"too many", http.StatusTooManyRequests, `{}`, nil, remote.ErrRateLimited},
		{"server error", http.StatusBadGateway, ``, nil, remote.ErrTransient},
		{"bad request", http.StatusBadRequest, `{}`, nil, remote.ErrRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := remotetest.New(t, "")
			c := newClient(srv, "tok")
			srv.FailNext(tc.status, tc.body, tc.header)
			_, err := c.Get(context.Background(), docPath)
			require.ErrorIs(t, err, tc.want)

			var re *remote.Error
			require.True(t, errors.As(err, &re))
			require.Equal(t, tc.status, re.Status)
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := remotetest.New(t, "")
	c := newClient(srv, "")
	srv.Close()
	_, err := c.Get(context.Background(), docPath)
	require.ErrorIs(t, err, remote.ErrTransient)
	require.True(t, remote.IsRetryable(err))
}

func TestCancelledContextAbandonsRequest(t *testing.T) {
	srv := remotetest.New(t, "")
	c := newClient(srv, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, docPath)
	require.ErrorIs(t, err, remote.ErrTransient)
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidateCredential(t *testing.T) {
	srv := remotetest.New(t, "good")
	c := newClient(srv, "")

	require.NoError(t, c.ValidateCredential(context.Background(), "good"))
	require.ErrorIs(t, c.ValidateCredential(context.Background(), "bad"), remote.ErrUnauthenticated)
	require.ErrorIs(t, c.ValidateCredential(context.Background(), ""), remote.ErrUnauthenticated)
	require.False(t, c.HasToken(), "validation must not retain the token")

	c.SetToken("good")
	require.True(t, c.HasToken())
}
