package blog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T) (*MockStore, *MediaStore, *httptest.Server) {
	t.Helper()
	mock := NewMock()
	media, err := NewMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaStore: %v", err)
	}
	cfg := &Config{
		TemplatesGlob: "../templates/*.html",
		PostsPerPage:  10,
		SessionTTL:    time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandlers(mock, media, cfg, logger)
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	ts := httptest.NewServer(h.Session.LoadAndSave(r))
	t.Cleanup(ts.Close)
	return mock, media, ts
}

// newClient returns an HTTP client with a cookie jar so the scs session
// survives across requests.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar}
}

// noRedirect stops the client at the first redirect so tests can inspect
// the Location header.
func noRedirect(c *http.Client) *http.Client {
	copied := *c
	copied.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &copied
}

func getBody(t *testing.T, c *http.Client, url string, wantStatus int) string {
	t.Helper()
	resp, err := c.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d\n%s", url, wantStatus, resp.StatusCode, b)
	}
	return string(b)
}

func postForm(t *testing.T, c *http.Client, url string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(url, form)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	resp.Body.Close()
	return resp
}

func signup(t *testing.T, c *http.Client, ts *httptest.Server, username string) {
	t.Helper()
	resp := postForm(t, c, ts.URL+"/auth/signup", url.Values{
		"username":  {username},
		"password1": {"correct horse"},
		"password2": {"correct horse"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup %s: status %d", username, resp.StatusCode)
	}
}

// postMultipart submits a multipart form with one file attached, the way the
// post create/edit forms do.
func postMultipart(t *testing.T, c *http.Client, target string, fields map[string]string, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s): %v", k, err)
		}
	}
	fw, err := w.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	resp, err := c.Post(target, w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", target, err)
	}
	resp.Body.Close()
	return resp
}

func mediaFileExists(t *testing.T, media *MediaStore, rel string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(media.Dir(), filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("stat %s: %v", rel, err)
	}
	return err == nil
}

func authorByUsername(t *testing.T, m *MockStore, username string) *Author {
	t.Helper()
	a, err := m.GetAuthorByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("GetAuthorByUsername(%s): %v", username, err)
	}
	return a
}

//
// --- Tests ---
//

func TestIndexListsPosts(t *testing.T) {
	mock, _, ts := setupTestServer(t)
	c := newClient(t)

	alice := seedAuthor(t, mock, "alice")
	g := seedGroup(t, mock, "Gophers", "gophers")
	p := seedPost(t, mock, alice, &g.ID, time.Now())
	p.Text = "hello from alice"
	if err := mock.UpdatePost(context.Background(), p); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}

	body := getBody(t, c, ts.URL+"/", http.StatusOK)
	if !strings.Contains(body, "hello from alice") {
		t.Errorf("index missing post text:\n%s", body)
	}
	if !strings.Contains(body, "page 1 of 1") {
		t.Errorf("index missing pagination")
	}
	if !strings.Contains(body, "Gophers") {
		t.Errorf("index missing group facet option")
	}
}

func TestIndexFiltersByGroup(t *testing.T) {
	mock, _, ts := setupTestServer(t)
	c := newClient(t)

	alice := seedAuthor(t, mock, "alice")
	g1 := seedGroup(t, mock, "One", "one")
	g2 := seedGroup(t, mock, "Two", "two")
	inG1 := seedPost(t, mock, alice, &g1.ID, time.Now())
	inG1.Text = "first-group-post"
	inG2 := seedPost(t, mock, alice, &g2.ID, time.Now())
	inG2.Text = "second-group-post"
	ctx := context.Background()
	if err := mock.UpdatePost(ctx, inG1); err != nil {
		t.Fatal(err)
	}
	if err := mock.UpdatePost(ctx, inG2); err != nil {
		t.Fatal(err)
	}

	body := getBody(t, c, ts.URL+"/?group="+strconv.FormatInt(g1.ID, 10), http.StatusOK)
	if !strings.Contains(body, "first-group-post") {
		t.Errorf("filtered listing missing matching post")
	}
	if strings.Contains(body, "second-group-post") {
		t.Errorf("filtered listing leaked a non-matching post")
	}
}

func TestIndexIgnoresInvalidFilterAndPage(t *testing.T) {
	mock, _, ts := setupTestServer(t)
	c := newClient(t)
	alice := seedAuthor(t, mock, "alice")
	seedPost(t, mock, alice, nil, time.Now())

	body := getBody(t, c, ts.URL+"/?rating=99&author=ghost&page=zzz", http.StatusOK)
	if !strings.Contains(body, "page 1 of 1") {
		t.Errorf("invalid parameters must fall back to an unfiltered page 1")
	}
}

func TestIndexPageBeyondLastClamps(t *testing.T) {
	mock, _, ts := setupTestServer(t)
	c := newClient(t)
	alice := seedAuthor(t, mock, "alice")
	for i := 0; i < 13; i++ {
		seedPost(t, mock, alice, nil, time.Now().Add(time.Duration(i)*time.Second))
	}

	body := getBody(t, c, ts.URL+"/?page=99", http.StatusOK)
	if !strings.Contains(body, "page 2 of 2") {
		t.Errorf("expected clamp to the last page")
	}
}

func TestSignupCreatePostFlow(t *testing.T) {
	_, _, ts := setupTestServer(t)
	c := newClient(t)

	signup(t, c, ts, "alice")
	resp := postForm(t, c, ts.URL+"/create", url.Values{
		"text": {"my very first post"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create post: status %d", resp.StatusCode)
	}

	body := getBody(t, c, ts.URL+"/profile/alice", http.StatusOK)
	if !strings.Contains(body, "my very first post") {
		t.Errorf("profile missing the new post")
	}
}

func TestCreatePostRequiresText(t *testing.T) {
	_, _, ts := setupTestServer(t)
	c := newClient(t)
	signup(t, c, ts, "alice")

	resp, err := c.PostForm(ts.URL+"/create", url.Values{"text": {"   "}})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "Post text is required.") {
		t.Errorf("expected the form to re-render with a field error")
	}
}

func TestAnonymousIsRedirectedToLogin(t *testing.T) {
	_, _, ts := setupTestServer(t)
	c := noRedirect(newClient(t))

	resp, err := c.Get(ts.URL + "/create")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/auth/login" {
		t.Errorf("expected redirect to login, got %q", loc)
	}
}

func TestRateOwnPostIsSilentNoOp(t *testing.T) {
	mock, _, ts := setupTestServer(t)
	c := newClient(t)

	signup(t, c, ts, "alice")
	alice := authorByUsername(t, mock, "alice")
	p := seedPost(t, mock, alice, nil, time.Now())

	resp := postForm(t, c, ts.URL+"/posts/"+strconv.FormatInt(p.ID, 10)+"/rate",
		url.Values{"rating": {"5"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rate own post: status %d", resp.StatusCode)
	}
	if n := mock.RatingCount(p.ID); n != 0 {
		t.Errorf("rating own post must store nothing, found %d rows", n)
	}
}

func TestRateOtherPostAndEmptyRating(t *testing.T) {
	mock, _, ts := setupTestServer(t)

	alice := seedAuthor(t, mock, "alice")
	p := seedPost(t, mock, alice, nil, time.Now())
	target := ts.URL + "/posts/" + strconv.FormatInt(p.ID, 10) + "/rate"

	c := newClient(t)
	signup(t, c, ts, "bob")

	postForm(t, c, target, url.Values{"rating": {"4"}})
	if n := mock.RatingCount(p.ID); n != 1 {
		t.Fatalf("expected one rating row, got %d", n)
	}

	// empty submission must not clear the existing rating
	postForm(t, c, target, url.Values{"rating": {""}})
	if n := mock.RatingCount(p.ID); n != 1 {
		t.Errorf("empty rating submission must be a no-op, got %d rows", n)
	}

	// re-rating updates in place
	postForm(t, c, target, url.Values{"rating": {"2"}})
	if n := mock.RatingCount(p.ID); n != 1 {
		t.Errorf("re-rating must not add rows, got %d", n)
	}
	got, err := mock.GetPost(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stats.RatingAvg == nil || *got.Stats.RatingAvg != 2 {
		t.Errorf("expected latest rating 2, got %v", got.Stats.RatingAvg)
	}
}

func TestFollowRoutes(t *testing.T) {
	mock, _, ts := setupTestServer(t)

	bob := seedAuthor(t, mock, "bob")
	p := seedPost(t, mock, bob, nil, time.Now())
	p.Text = "bob-feed-post"
	if err := mock.UpdatePost(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	c := newClient(t)
	signup(t, c, ts, "alice")
	alice := authorByUsername(t, mock, "alice")

	// double-follow stays idempotent
	postForm(t, c, ts.URL+"/profile/bob/follow", nil)
	postForm(t, c, ts.URL+"/profile/bob/follow", nil)
	if n := mock.FollowCount(alice.ID, bob.ID); n != 1 {
		t.Fatalf("expected one follow row, got %d", n)
	}

	body := getBody(t, c, ts.URL+"/follow", http.StatusOK)
	if !strings.Contains(body, "bob-feed-post") {
		t.Errorf("follow feed missing followed author's post")
	}

	// self-follow is silently rejected
	postForm(t, c, ts.URL+"/profile/alice/follow", nil)
	if n := mock.FollowCount(alice.ID, alice.ID); n != 0 {
		t.Errorf("self-follow created %d rows", n)
	}

	postForm(t, c, ts.URL+"/profile/bob/unfollow", nil)
	if n := mock.FollowCount(alice.ID, bob.ID); n != 0 {
		t.Errorf("unfollow left %d rows", n)
	}
	// unfollowing again is a no-op, not an error
	resp := postForm(t, c, ts.URL+"/profile/bob/unfollow", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unfollow of absent follow: status %d", resp.StatusCode)
	}
}

func TestEditByNonAuthorRedirectsToDetail(t *testing.T) {
	mock, _, ts := setupTestServer(t)

	alice := seedAuthor(t, mock, "alice")
	p := seedPost(t, mock, alice, nil, time.Now())
	detail := "/posts/" + strconv.FormatInt(p.ID, 10)

	c := newClient(t)
	signup(t, c, ts, "bob")

	resp, err := noRedirect(c).Get(ts.URL + detail + "/edit")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect for non-author, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != detail {
		t.Errorf("expected redirect to %s, got %q", detail, loc)
	}
}

func TestAddCommentAndValidation(t *testing.T) {
	mock, _, ts := setupTestServer(t)

	alice := seedAuthor(t, mock, "alice")
	p := seedPost(t, mock, alice, nil, time.Now())
	target := ts.URL + "/posts/" + strconv.FormatInt(p.ID, 10) + "/comment"

	c := newClient(t)
	signup(t, c, ts, "bob")

	resp, err := c.PostForm(target, url.Values{"text": {""}})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), "Comment text is required.") {
		t.Errorf("expected validation message on empty comment")
	}

	postForm(t, c, target, url.Values{"text": {"great post"}})
	body := getBody(t, c, ts.URL+"/posts/"+strconv.FormatInt(p.ID, 10), http.StatusOK)
	if !strings.Contains(body, "great post") {
		t.Errorf("detail page missing the new comment")
	}
	if !strings.Contains(body, "Comments (1)") {
		t.Errorf("detail page missing comment count")
	}
}

func TestNotFoundPages(t *testing.T) {
	_, _, ts := setupTestServer(t)
	c := newClient(t)

	getBody(t, c, ts.URL+"/posts/424242", http.StatusNotFound)
	getBody(t, c, ts.URL+"/group/no-such-slug", http.StatusNotFound)
	getBody(t, c, ts.URL+"/profile/ghost", http.StatusNotFound)
	getBody(t, c, ts.URL+"/definitely/not/a/route", http.StatusNotFound)
}

func TestStoreFailureBecomesServerError(t *testing.T) {
	mock, _, ts := setupTestServer(t)
	c := newClient(t)

	mock.ShouldFail = true
	getBody(t, c, ts.URL+"/", http.StatusInternalServerError)
}

func TestLoginLogout(t *testing.T) {
	_, _, ts := setupTestServer(t)
	c := newClient(t)
	signup(t, c, ts, "alice")

	// log out, then back in with the right password
	body := getBody(t, c, ts.URL+"/auth/logout", http.StatusOK)
	if !strings.Contains(body, "logged out") {
		t.Errorf("expected logout page")
	}

	resp, err := c.PostForm(ts.URL+"/auth/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), "Unknown username or wrong password.") {
		t.Errorf("expected login failure message")
	}

	postForm(t, c, ts.URL+"/auth/login", url.Values{
		"username": {"alice"},
		"password": {"correct horse"},
	})
	body = getBody(t, c, ts.URL+"/", http.StatusOK)
	if !strings.Contains(body, "/auth/logout") {
		t.Errorf("expected a signed-in navigation after login")
	}
}

func TestDeletePostRemovesImageFile(t *testing.T) {
	mock, media, ts := setupTestServer(t)
	c := newClient(t)
	signup(t, c, ts, "alice")

	resp := postMultipart(t, c, ts.URL+"/create",
		map[string]string{"text": "with picture"}, "pic.png", "png-bytes")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create with image: status %d", resp.StatusCode)
	}

	posts, err := mock.ListPosts(context.Background(), PostQuery{})
	if err != nil || len(posts) != 1 {
		t.Fatalf("expected one stored post, got %v (%v)", posts, err)
	}
	p := posts[0]
	if p.Image == "" {
		t.Fatal("expected the upload stored on the post")
	}
	if !mediaFileExists(t, media, p.Image) {
		t.Fatalf("expected media file %s on disk", p.Image)
	}

	postForm(t, c, ts.URL+"/posts/"+strconv.FormatInt(p.ID, 10)+"/delete", nil)
	if _, err := mock.GetPost(context.Background(), p.ID); err != ErrNotFound {
		t.Errorf("expected the post gone, got %v", err)
	}
	if mediaFileExists(t, media, p.Image) {
		t.Errorf("expected media file %s removed with the post", p.Image)
	}
}

func TestEditPostReplacesImageFile(t *testing.T) {
	mock, media, ts := setupTestServer(t)
	c := newClient(t)
	signup(t, c, ts, "alice")
	alice := authorByUsername(t, mock, "alice")

	oldRel, err := media.Save("old.png", strings.NewReader("old-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	p := seedPost(t, mock, alice, nil, time.Now())
	p.Image = oldRel
	if err := mock.UpdatePost(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	resp := postMultipart(t, c, ts.URL+"/posts/"+strconv.FormatInt(p.ID, 10)+"/edit",
		map[string]string{"text": "updated text"}, "new.png", "new-bytes")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit with image: status %d", resp.StatusCode)
	}

	got, err := mock.GetPost(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Image == "" || got.Image == oldRel {
		t.Fatalf("expected a fresh image path, got %q", got.Image)
	}
	if !mediaFileExists(t, media, got.Image) {
		t.Errorf("expected new media file %s on disk", got.Image)
	}
	if mediaFileExists(t, media, oldRel) {
		t.Errorf("expected replaced media file %s removed", oldRel)
	}
}

func TestModifyQueryPreservesRepeatedParams(t *testing.T) {
	q := url.Values{"tag": {"a", "b"}, "page": {"2"}, "empty": {""}}
	got := string(modifyQuery(q, "page", "3"))
	parsed, err := url.ParseQuery(strings.TrimPrefix(got, "?"))
	if err != nil {
		t.Fatalf("ParseQuery(%q): %v", got, err)
	}
	if len(parsed["tag"]) != 2 {
		t.Errorf("expected both tag values kept, got %v", parsed["tag"])
	}
	if parsed.Get("page") != "3" {
		t.Errorf("expected page overridden to 3, got %q", parsed.Get("page"))
	}
	if _, ok := parsed["empty"]; ok {
		t.Errorf("expected the empty parameter dropped")
	}
	if trimmed := string(modifyQuery(q, "page", "")); strings.Contains(trimmed, "page=") {
		t.Errorf("expected page removed, got %q", trimmed)
	}
}
