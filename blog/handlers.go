// blog/handlers.go
package blog

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
)

const sessionKeyAuthor = "authorID"

// maxUploadBytes caps post image uploads.
const maxUploadBytes = 10 << 20

// viewBase carries what every template needs: the signed-in author (if any)
// and the request's path and query for building facet/page links.
type viewBase struct {
	User  *Author
	Path  string
	Query url.Values
}

// IndexViewData is the data structure for the home page.
type IndexViewData struct {
	viewBase
	Page   Page
	Facets *Facets
}

// GroupViewData is the data structure for one group's listing.
type GroupViewData struct {
	viewBase
	Group *Group
	Page  Page
}

// ProfileViewData is the data structure for an author's page.
type ProfileViewData struct {
	viewBase
	Author    *Author
	Page      Page
	Following bool
	IsSelf    bool
}

// PostViewData is the data structure for the post detail page.
type PostViewData struct {
	viewBase
	Post          *Post
	Comments      []Comment
	CommentForm   CommentForm
	RatingChoices []Choice
	IsOwner       bool
}

// PostFormViewData is the data structure for the create/edit page.
type PostFormViewData struct {
	viewBase
	Form   PostForm
	Groups []Group
	IsEdit bool
	PostID int64
}

// FollowViewData is the data structure for the follow feed.
type FollowViewData struct {
	viewBase
	Page Page
}

type Handlers struct {
	store     Store
	media     *MediaStore
	templates *template.Template
	Session   *scs.SessionManager
	log       *slog.Logger
	perPage   int
}

func NewHandlers(store Store, media *MediaStore, cfg *Config, logger *slog.Logger) (*Handlers, error) {
	tpl, err := template.New("").Funcs(template.FuncMap{
		"modquery": modifyQuery,
		"stars":    starBreakdown,
		"repeat":   strings.Repeat,
	}).ParseGlob(cfg.TemplatesGlob)
	if err != nil {
		return nil, err
	}
	session := scs.New()
	session.Lifetime = cfg.SessionTTL
	return &Handlers{
		store:     store,
		media:     media,
		templates: tpl,
		Session:   session,
		log:       logger,
		perPage:   cfg.PostsPerPage,
	}, nil
}

func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/group/{slug}", h.groupPosts)
	r.Get("/profile/{username}", h.profile)
	r.Get("/posts/{postID}", h.postDetail)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireLogin)
		r.Get("/create", h.postCreateForm)
		r.Post("/create", h.postCreate)
		r.Get("/posts/{postID}/edit", h.postEditForm)
		r.Post("/posts/{postID}/edit", h.postEdit)
		r.Post("/posts/{postID}/delete", h.postDelete)
		r.Post("/posts/{postID}/comment", h.addComment)
		r.Post("/posts/{postID}/rate", h.ratePost)
		r.Get("/follow", h.followIndex)
		r.Post("/profile/{username}/follow", h.profileFollow)
		r.Post("/profile/{username}/unfollow", h.profileUnfollow)
	})

	h.registerAuthRoutes(r)

	r.Get("/about/author", h.aboutAuthor)
	r.Get("/about/tech", h.aboutTech)

	r.Handle("/media/*", http.StripPrefix("/media/",
		http.FileServer(http.Dir(h.media.Dir()))))

	r.NotFound(h.notFound)
}

// --- Template helpers ---

// modifyQuery rebuilds the current query string with the given key/value
// pairs applied; an empty value drops the key. Empty parameters never
// survive into the link.
func modifyQuery(query url.Values, pairs ...string) template.URL {
	q := url.Values{}
	for key, values := range query {
		for _, v := range values {
			if v != "" {
				q.Add(key, v)
			}
		}
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			q.Del(pairs[i])
		} else {
			q.Set(pairs[i], pairs[i+1])
		}
	}
	return template.URL("?" + q.Encode())
}

// StarBreakdown splits an average rating into whole, half, and empty stars
// for the five-star widget.
type StarBreakdown struct {
	Full  int
	Half  int
	Empty int
}

func starBreakdown(avg *float64) StarBreakdown {
	if avg == nil {
		return StarBreakdown{Empty: 5}
	}
	fraction, integer := math.Modf(*avg)
	full := int(integer)
	half := 0
	if fraction >= 0.5 {
		half = 1
	}
	return StarBreakdown{Full: full, Half: half, Empty: 5 - full - half}
}

// --- Request helpers ---

func (h *Handlers) base(r *http.Request) viewBase {
	return viewBase{
		User:  h.currentAuthor(r),
		Path:  r.URL.Path,
		Query: r.URL.Query(),
	}
}

// currentAuthor resolves the session to an Author, nil when anonymous. A
// stale session pointing at a missing row is treated as anonymous too.
func (h *Handlers) currentAuthor(r *http.Request) *Author {
	id := h.Session.GetString(r.Context(), sessionKeyAuthor)
	if id == "" {
		return nil
	}
	author, err := h.store.GetAuthorByID(r.Context(), id)
	if err != nil {
		return nil
	}
	author.Sanitize()
	return author
}

// RequireLogin redirects anonymous requests to the login page.
func (h *Handlers) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Session.GetString(r.Context(), sessionKeyAuthor) == "" {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("template render failed", "template", name, "error", err)
	}
}

func (h *Handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusNotFound, "404.html", h.base(r))
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed", "path", r.URL.Path, "error", err)
	h.render(w, http.StatusInternalServerError, "500.html", h.base(r))
}

// --- Listing pages ---

// index renders the home page: all posts decorated with statistics, run
// through the facet pipeline, then paged.
func (h *Handlers) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authors, err := h.store.AuthorsWithPosts(ctx)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	groups, err := h.store.GroupsWithPosts(ctx)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	form := NewFilterForm(authors, groups)
	facets := BuildFacets(form)
	selected := form.Parse(r.URL.Query())
	q := ApplyFacets(facets, PostQuery{}, form, selected)

	posts, err := h.store.ListPosts(ctx, q)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	data := IndexViewData{
		viewBase: h.base(r),
		Page:     Paginate(posts, r.URL.Query().Get("page"), h.perPage),
		Facets:   facets,
	}
	h.render(w, http.StatusOK, "index.html", data)
}

func (h *Handlers) groupPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	group, err := h.store.GetGroupBySlug(ctx, chi.URLParam(r, "slug"))
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	posts, err := h.store.ListPosts(ctx, PostQuery{GroupID: &group.ID})
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	data := GroupViewData{
		viewBase: h.base(r),
		Group:    group,
		Page:     Paginate(posts, r.URL.Query().Get("page"), h.perPage),
	}
	h.render(w, http.StatusOK, "group_list.html", data)
}

func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	author, err := h.store.GetAuthorByUsername(ctx, chi.URLParam(r, "username"))
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	author.Sanitize()

	posts, err := h.store.ListPosts(ctx, PostQuery{AuthorID: author.ID})
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	data := ProfileViewData{
		viewBase: h.base(r),
		Author:   author,
		Page:     Paginate(posts, r.URL.Query().Get("page"), h.perPage),
	}
	if data.User != nil {
		data.IsSelf = data.User.ID == author.ID
		if !data.IsSelf {
			following, err := h.store.IsFollowing(ctx, data.User.ID, author.ID)
			if err != nil {
				h.serverError(w, r, err)
				return
			}
			data.Following = following
		}
	}
	h.render(w, http.StatusOK, "profile.html", data)
}

func (h *Handlers) followIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := h.currentAuthor(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	posts, err := h.store.ListPosts(ctx, PostQuery{FollowedBy: user.ID})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data := FollowViewData{
		viewBase: h.base(r),
		Page:     Paginate(posts, r.URL.Query().Get("page"), h.perPage),
	}
	h.render(w, http.StatusOK, "follow.html", data)
}

// --- Post detail, comments, ratings ---

func (h *Handlers) postDetail(w http.ResponseWriter, r *http.Request) {
	h.renderPostDetail(w, r, CommentForm{}, http.StatusOK)
}

func (h *Handlers) renderPostDetail(w http.ResponseWriter, r *http.Request, commentForm CommentForm, status int) {
	ctx := r.Context()
	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil {
		h.notFound(w, r)
		return
	}
	post, err := h.store.GetPost(ctx, postID)
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	comments, err := h.store.ListComments(ctx, postID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	data := PostViewData{
		viewBase:      h.base(r),
		Post:          post,
		Comments:      comments,
		CommentForm:   commentForm,
		RatingChoices: RatingChoices,
	}
	data.IsOwner = data.User != nil && data.User.ID == post.AuthorID
	h.render(w, status, "post_detail.html", data)
}

func (h *Handlers) addComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := h.currentAuthor(r)
	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil || user == nil {
		h.notFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.notFound(w, r)
		return
	}

	form := CommentForm{Text: r.PostFormValue("text")}
	if !form.Validate() {
		h.renderPostDetail(w, r, form, http.StatusOK)
		return
	}
	comment := Comment{PostID: postID, AuthorID: user.ID, Text: form.Text}
	if err := h.store.CreateComment(ctx, &comment); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.notFound(w, r)
			return
		}
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/posts/"+strconv.FormatInt(postID, 10), http.StatusSeeOther)
}

// ratePost applies the star widget. Authors never rate their own posts and
// an empty submission leaves any stored rating untouched; both cases end in
// the same redirect with nothing surfaced.
func (h *Handlers) ratePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := h.currentAuthor(r)
	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil || user == nil {
		h.notFound(w, r)
		return
	}
	post, err := h.store.GetPost(ctx, postID)
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	detail := "/posts/" + strconv.FormatInt(postID, 10)
	if post.AuthorID == user.ID {
		http.Redirect(w, r, detail, http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, detail, http.StatusSeeOther)
		return
	}
	form := RatingForm{Value: r.PostFormValue("rating")}
	if value := form.Rating(); value != 0 {
		if err := h.store.UpsertRating(ctx, user.ID, postID, value); err != nil {
			h.serverError(w, r, err)
			return
		}
	}
	http.Redirect(w, r, detail, http.StatusSeeOther)
}

// --- Post create / edit / delete ---

func (h *Handlers) postCreateForm(w http.ResponseWriter, r *http.Request) {
	h.renderPostForm(w, r, PostForm{}, false, 0, http.StatusOK)
}

func (h *Handlers) renderPostForm(w http.ResponseWriter, r *http.Request, form PostForm, isEdit bool, postID int64, status int) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data := PostFormViewData{
		viewBase: h.base(r),
		Form:     form,
		Groups:   groups,
		IsEdit:   isEdit,
		PostID:   postID,
	}
	h.render(w, status, "create_post.html", data)
}

// parsePostForm reads the submission and stores any uploaded image,
// returning its media path ("" when no file was sent). A plain urlencoded
// body (no file input) is accepted too.
func (h *Handlers) parsePostForm(r *http.Request) (PostForm, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return PostForm{}, "", err
	}
	form := PostForm{
		Text:    r.PostFormValue("text"),
		GroupID: r.PostFormValue("group"),
	}
	if r.MultipartForm == nil {
		return form, "", nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return form, "", nil
	}
	if err != nil {
		return form, "", err
	}
	defer file.Close()
	image, err := h.media.Save(header.Filename, file)
	if err != nil {
		return form, "", err
	}
	return form, image, nil
}

func (h *Handlers) postCreate(w http.ResponseWriter, r *http.Request) {
	user := h.currentAuthor(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	form, image, err := h.parsePostForm(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if !form.Validate() {
		h.renderPostForm(w, r, form, false, 0, http.StatusOK)
		return
	}
	post := Post{
		Text:     form.Text,
		AuthorID: user.ID,
		GroupID:  form.Group(),
		Image:    image,
	}
	if err := h.store.CreatePost(r.Context(), &post); err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/profile/"+user.Username, http.StatusSeeOther)
}

// loadOwnPost fetches the post and enforces that the current user wrote it.
// Anyone else is bounced to the detail page, not shown an error.
func (h *Handlers) loadOwnPost(w http.ResponseWriter, r *http.Request) (*Post, *Author, bool) {
	user := h.currentAuthor(r)
	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil || user == nil {
		h.notFound(w, r)
		return nil, nil, false
	}
	post, err := h.store.GetPost(r.Context(), postID)
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, r)
		return nil, nil, false
	}
	if err != nil {
		h.serverError(w, r, err)
		return nil, nil, false
	}
	if post.AuthorID != user.ID {
		http.Redirect(w, r, "/posts/"+strconv.FormatInt(postID, 10), http.StatusSeeOther)
		return nil, nil, false
	}
	return post, user, true
}

func (h *Handlers) postEditForm(w http.ResponseWriter, r *http.Request) {
	post, _, ok := h.loadOwnPost(w, r)
	if !ok {
		return
	}
	form := PostForm{Text: post.Text}
	if post.GroupID != nil {
		form.GroupID = strconv.FormatInt(*post.GroupID, 10)
	}
	h.renderPostForm(w, r, form, true, post.ID, http.StatusOK)
}

func (h *Handlers) postEdit(w http.ResponseWriter, r *http.Request) {
	post, _, ok := h.loadOwnPost(w, r)
	if !ok {
		return
	}
	form, image, err := h.parsePostForm(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if !form.Validate() {
		h.renderPostForm(w, r, form, true, post.ID, http.StatusOK)
		return
	}

	oldImage := post.Image
	post.Text = form.Text
	post.GroupID = form.Group()
	if image != "" {
		post.Image = image
	}
	if err := h.store.UpdatePost(r.Context(), post); err != nil {
		h.serverError(w, r, err)
		return
	}
	if image != "" && oldImage != "" {
		if err := h.media.Remove(oldImage); err != nil {
			h.log.Error("failed to remove replaced image", "path", oldImage, "error", err)
		}
	}
	http.Redirect(w, r, "/posts/"+strconv.FormatInt(post.ID, 10), http.StatusSeeOther)
}

func (h *Handlers) postDelete(w http.ResponseWriter, r *http.Request) {
	post, _, ok := h.loadOwnPost(w, r)
	if !ok {
		return
	}
	if err := h.store.DeletePost(r.Context(), post.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.media.Remove(post.Image); err != nil {
		h.log.Error("failed to remove post image", "path", post.Image, "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// --- Follows ---

func (h *Handlers) profileFollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.store.CreateFollow)
}

func (h *Handlers) profileUnfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.store.DeleteFollow)
}

func (h *Handlers) changeFollow(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, followerID, followedID string) error) {
	ctx := r.Context()
	user := h.currentAuthor(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	username := chi.URLParam(r, "username")
	author, err := h.store.GetAuthorByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		h.notFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := op(ctx, user.ID, author.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/profile/"+username, http.StatusSeeOther)
}

// --- Static pages ---

func (h *Handlers) aboutAuthor(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "about_author.html", h.base(r))
}

func (h *Handlers) aboutTech(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "about_tech.html", h.base(r))
}
