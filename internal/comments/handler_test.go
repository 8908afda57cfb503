package comments

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nekostream/internal/auth"
	"nekostream/pkg/database"
	"nekostream/pkg/models"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Repo, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	userID := uuid.NewString()
	err = auth.NewRepo(db).CreateUser(context.Background(), auth.User{
		ID: userID, Username: "alice", PasswordHash: "x", Role: "user",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	repo := NewRepo(db)
	h := NewHandler(repo, nil)

	router := gin.New()
	h.RegisterPublicRoutes(router.Group("/"))

	// stand-in for the token middleware: attach the seeded identity
	authed := router.Group("/", func(c *gin.Context) {
		c.Set(auth.CtxClaimsKey, &auth.Claims{UserID: userID, Username: "alice"})
	})
	h.RegisterProtectedRoutes(authed)

	return router, repo, userID
}

func postComment(t *testing.T, router *gin.Engine, episodeID, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"episode_id": episodeID,
		"content":    content,
	})
	req := httptest.NewRequest(http.MethodPost, "/comments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateCapCountsCharactersNotBytes(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// 400 characters of a 3-byte-per-rune script is well under the 500
	// character cap even though it is 1200 bytes
	content := strings.Repeat("あ", 400)
	w := postComment(t, router, "ep-1", content)
	if w.Code != http.StatusCreated {
		t.Fatalf("multibyte comment under the cap rejected: %d %s", w.Code, w.Body.String())
	}

	var created models.Comment
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Content != content {
		t.Fatal("content mangled on the way through")
	}
	if created.Username != "alice" {
		t.Fatalf("author not joined in: %+v", created)
	}
}

func TestCreateCapBoundary(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// exactly at the cap is fine
	if w := postComment(t, router, "ep-1", strings.Repeat("ね", models.MaxCommentLength)); w.Code != http.StatusCreated {
		t.Fatalf("comment at the cap rejected: %d %s", w.Code, w.Body.String())
	}

	// one character over is not
	if w := postComment(t, router, "ep-1", strings.Repeat("ね", models.MaxCommentLength+1)); w.Code != http.StatusBadRequest {
		t.Fatalf("comment over the cap accepted: %d", w.Code)
	}
}

func TestCreateRejectsBlankContent(t *testing.T) {
	router, _, _ := newTestRouter(t)

	if w := postComment(t, router, "ep-1", "   "); w.Code != http.StatusBadRequest {
		t.Fatalf("blank comment accepted: %d", w.Code)
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	router, repo, userID := newTestRouter(t)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if _, err := repo.Create(ctx, "ep-1", userID, content); err != nil {
			t.Fatalf("seed comment: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/comments/ep-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}

	var items []models.Comment
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d comments, want 3", len(items))
	}
	if items[0].Content != "third" {
		t.Fatalf("first listed = %q, want the newest", items[0].Content)
	}
}
