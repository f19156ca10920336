package server

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"yatube/internal/events"
	"yatube/internal/models"
	"yatube/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pagePayload struct {
	Items       []models.Post `json:"object_list"`
	Number      int           `json:"number"`
	NumPages    int           `json:"num_pages"`
	Count       int64         `json:"count"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
}

type listPayload struct {
	Page pagePayload `json:"page"`
}

type formPayload struct {
	Edit  bool   `json:"edit"`
	Form  form   `json:"form"`
	Error string `json:"error"`
}

type upload struct {
	filename    string
	contentType string
	content     []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, file *upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, file.filename))
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func postTexts(posts []models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Text)
	}
	return out
}

func TestCreatePost(t *testing.T) {
	t.Run("authenticated user creates a post", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")
		group := testutil.CreateGroup(t, env.db, "cats", "Cats")

		resp := env.postForm("/new/", url.Values{
			"text":  {"Hello from the test"},
			"group": {fmt.Sprint(group.ID)},
		}, env.login(leo))

		requireRedirect(t, resp, "/")
		require.Equal(t, int64(1), env.count(&models.Post{}))

		var post models.Post
		require.NoError(t, env.db.First(&post).Error)
		assert.Equal(t, "Hello from the test", post.Text)
		assert.Equal(t, leo.ID, post.AuthorID)
		require.NotNil(t, post.GroupID)
		assert.Equal(t, group.ID, *post.GroupID)
		assert.Contains(t, env.publisher.published(), events.SubjectPostCreated)
	})

	t.Run("guest is redirected to login", func(t *testing.T) {
		env := newTestEnv(t)

		resp := env.postForm("/new/", url.Values{"text": {"anonymous"}}, nil)

		requireRedirect(t, resp, "/auth/login/?next=/new/")
		assert.Equal(t, int64(0), env.count(&models.Post{}))
	})

	t.Run("empty text and unknown group are field errors", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")

		resp := env.postForm("/new/", url.Values{"text": {"   "}, "group": {"999"}}, env.login(leo))

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body formPayload
		decodeJSON(t, resp, &body)
		assert.NotEmpty(t, body.Form.Errors["text"])
		assert.NotEmpty(t, body.Form.Errors["group"])
		assert.False(t, body.Edit)
		assert.Equal(t, int64(0), env.count(&models.Post{}))
	})

	t.Run("mismatched image type is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")

		req := multipartRequest(t, "/new/", map[string]string{"text": "with picture"}, &upload{
			filename:    "picture.gif",
			contentType: "image/gif",
			content:     testutil.TinyPNG(t, 2, 2),
		})
		resp := env.do(req, env.login(leo))

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body formPayload
		decodeJSON(t, resp, &body)
		assert.NotEmpty(t, body.Form.Errors["image"])
		assert.Equal(t, "with picture", body.Form.Fields[0].Value)
		assert.Equal(t, int64(0), env.count(&models.Post{}))

		entries, err := os.ReadDir(env.uploads)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("bytes that are not an image are rejected", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")

		req := multipartRequest(t, "/new/", map[string]string{"text": "fake"}, &upload{
			filename:    "picture.png",
			contentType: "image/png",
			content:     []byte("definitely not a png"),
		})
		resp := env.do(req, env.login(leo))

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, int64(0), env.count(&models.Post{}))
	})

	t.Run("valid image is stored and served", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")

		req := multipartRequest(t, "/new/", map[string]string{"text": "with picture"}, &upload{
			filename:    "picture.png",
			contentType: "image/png",
			content:     testutil.TinyPNG(t, 3, 3),
		})
		resp := env.do(req, env.login(leo))
		requireRedirect(t, resp, "/")

		var post models.Post
		require.NoError(t, env.db.First(&post).Error)
		require.NotEmpty(t, post.Image)
		assert.FileExists(t, filepath.Join(env.uploads, filepath.FromSlash(post.Image)))

		media := env.get("/media/"+post.Image, nil)
		assert.Equal(t, http.StatusOK, media.StatusCode)
	})
}

func TestNewPostForm(t *testing.T) {
	env := newTestEnv(t)
	leo := testutil.CreateUser(t, env.db, "leo")
	testutil.CreateGroup(t, env.db, "cats", "Cats")

	resp := env.get("/new/", env.login(leo))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body formPayload
	decodeJSON(t, resp, &body)
	assert.False(t, body.Edit)
	require.Len(t, body.Form.Fields, 3)
	group := body.Form.Fields[1]
	assert.Equal(t, "group", group.Name)
	require.Len(t, group.Choices, 2)
	assert.Equal(t, "Cats", group.Choices[1].Label)
}

func TestEditPost(t *testing.T) {
	t.Run("author edits in place", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")
		post := testutil.CreatePost(t, env.db, leo, nil, "first draft")
		path := fmt.Sprintf("/leo/%d/edit/", post.ID)

		form := env.get(path, env.login(leo))
		require.Equal(t, http.StatusOK, form.StatusCode)
		var body formPayload
		decodeJSON(t, form, &body)
		assert.True(t, body.Edit)
		assert.Equal(t, "first draft", body.Form.Fields[0].Value)

		resp := env.postForm(path, url.Values{"text": {"final version"}}, env.login(leo))
		requireRedirect(t, resp, fmt.Sprintf("/leo/%d/", post.ID))

		var stored models.Post
		require.NoError(t, env.db.First(&stored, post.ID).Error)
		assert.Equal(t, "final version", stored.Text)
		assert.True(t, post.PubDate.Equal(stored.PubDate))
		assert.Equal(t, int64(1), env.count(&models.Post{}))
	})

	t.Run("non-author is sent to the post unchanged", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")
		mallory := testutil.CreateUser(t, env.db, "mallory")
		post := testutil.CreatePost(t, env.db, leo, nil, "original")
		path := fmt.Sprintf("/leo/%d/edit/", post.ID)
		detail := fmt.Sprintf("/leo/%d/", post.ID)

		requireRedirect(t, env.get(path, env.login(mallory)), detail)
		requireRedirect(t, env.postForm(path, url.Values{"text": {"hacked"}}, env.login(mallory)), detail)

		var stored models.Post
		require.NoError(t, env.db.First(&stored, post.ID).Error)
		assert.Equal(t, "original", stored.Text)
	})

	t.Run("invalid edit re-renders the bound form", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")
		post := testutil.CreatePost(t, env.db, leo, nil, "original")

		resp := env.postForm(fmt.Sprintf("/leo/%d/edit/", post.ID), url.Values{"text": {""}}, env.login(leo))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body formPayload
		decodeJSON(t, resp, &body)
		assert.True(t, body.Edit)
		assert.NotEmpty(t, body.Form.Errors["text"])
	})

	t.Run("wrong author in the path is not found", func(t *testing.T) {
		env := newTestEnv(t)
		leo := testutil.CreateUser(t, env.db, "leo")
		testutil.CreateUser(t, env.db, "ann")
		post := testutil.CreatePost(t, env.db, leo, nil, "original")

		resp := env.get(fmt.Sprintf("/ann/%d/edit/", post.ID), env.login(leo))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestIndexPagination(t *testing.T) {
	env := newTestEnv(t, withFeatureFlags("page_cache=off"))
	leo := testutil.CreateUser(t, env.db, "leo")
	for i := 0; i < 13; i++ {
		testutil.CreatePost(t, env.db, leo, nil, fmt.Sprintf("post %02d", i))
	}

	tests := []struct {
		query   string
		number  int
		entries int
	}{
		{"", 1, 10},
		{"?page=2", 2, 3},
		{"?page=abc", 1, 10},
		{"?page=0", 1, 10},
		{"?page=99", 2, 3},
	}

	for _, tt := range tests {
		t.Run("page"+tt.query, func(t *testing.T) {
			resp := env.get("/"+tt.query, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body listPayload
			decodeJSON(t, resp, &body)
			assert.Equal(t, tt.number, body.Page.Number)
			assert.Equal(t, 2, body.Page.NumPages)
			assert.Equal(t, int64(13), body.Page.Count)
			assert.Len(t, body.Page.Items, tt.entries)
		})
	}

	resp := env.get("/", nil)
	var first listPayload
	decodeJSON(t, resp, &first)
	assert.Equal(t, "post 00", first.Page.Items[0].Text)
	assert.Equal(t, "leo", first.Page.Items[0].Author.Username)
}

func TestGroupPosts(t *testing.T) {
	env := newTestEnv(t)
	leo := testutil.CreateUser(t, env.db, "leo")
	cats := testutil.CreateGroup(t, env.db, "cats", "Cats")
	dogs := testutil.CreateGroup(t, env.db, "dogs", "Dogs")
	testutil.CreatePost(t, env.db, leo, cats, "meow")
	testutil.CreatePost(t, env.db, leo, dogs, "woof")
	testutil.CreatePost(t, env.db, leo, nil, "no group")

	resp := env.get("/group/cats/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Group models.Group `json:"group"`
		Page  pagePayload  `json:"page"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "Cats", body.Group.Title)
	assert.Equal(t, []string{"meow"}, postTexts(body.Page.Items))
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	leo := testutil.CreateUser(t, env.db, "leo")
	ann := testutil.CreateUser(t, env.db, "ann")
	testutil.CreatePost(t, env.db, leo, nil, "one")
	testutil.CreatePost(t, env.db, leo, nil, "two")
	testutil.CreatePost(t, env.db, ann, nil, "other")
	testutil.Follow(t, env.db, ann, leo)

	type profilePayload struct {
		Author         models.User `json:"author"`
		Page           pagePayload `json:"page"`
		Following      bool        `json:"following"`
		PostsCount     int64       `json:"posts_count"`
		FollowersCount int64       `json:"followers_count"`
		FollowingCount int64       `json:"following_count"`
	}

	tests := []struct {
		name      string
		viewer    *models.User
		following bool
	}{
		{"guest", nil, false},
		{"follower", ann, true},
		{"self", leo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookie *http.Cookie
			if tt.viewer != nil {
				cookie = env.login(tt.viewer)
			}
			resp := env.get("/leo/", cookie)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body profilePayload
			decodeJSON(t, resp, &body)
			assert.Equal(t, "leo", body.Author.Username)
			assert.Equal(t, []string{"one", "two"}, postTexts(body.Page.Items))
			assert.Equal(t, tt.following, body.Following)
			assert.Equal(t, int64(2), body.PostsCount)
			assert.Equal(t, int64(1), body.FollowersCount)
			assert.Equal(t, int64(0), body.FollowingCount)
		})
	}
}

func TestProfile_ExactUsernameSpelling(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "leo")

	assert.Equal(t, http.StatusOK, env.get("/leo/", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get("/Leo/", nil).StatusCode)
}

func TestPublicPages_ShowOnlyPublicProfile(t *testing.T) {
	env := newTestEnv(t)
	leo := testutil.CreateUser(t, env.db, "leo")
	require.NoError(t, env.db.Model(leo).Updates(map[string]any{
		"first_name": "Lev", "last_name": "Tolstoy", "is_admin": true,
	}).Error)
	ann := testutil.CreateUser(t, env.db, "ann")
	cats := testutil.CreateGroup(t, env.db, "cats", "Cats")
	post := testutil.CreatePost(t, env.db, leo, cats, "hello")
	require.NoError(t, env.db.Create(&models.Comment{PostID: post.ID, AuthorID: ann.ID, Text: "hi"}).Error)

	paths := []string{"/", "/group/cats/", "/leo/", fmt.Sprintf("/leo/%d/", post.ID)}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			resp := env.get(path, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			body := readBody(t, resp)

			assert.NotContains(t, body, `"email"`)
			assert.NotContains(t, body, "@example.com")
			assert.NotContains(t, body, `"is_admin"`)
			assert.Contains(t, body, `"full_name":"Lev Tolstoy"`)
		})
	}
}

func TestPostView(t *testing.T) {
	env := newTestEnv(t)
	leo := testutil.CreateUser(t, env.db, "leo")
	ann := testutil.CreateUser(t, env.db, "ann")
	post := testutil.CreatePost(t, env.db, leo, nil, "hello")
	testutil.CreatePost(t, env.db, leo, nil, "again")
	require.NoError(t, env.db.Create(&models.Comment{PostID: post.ID, AuthorID: ann.ID, Text: "first!"}).Error)
	require.NoError(t, env.db.Create(&models.Comment{PostID: post.ID, AuthorID: leo.ID, Text: "thanks"}).Error)

	resp := env.get(fmt.Sprintf("/leo/%d/", post.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Post       models.Post      `json:"post"`
		Author     models.User      `json:"author"`
		PostsCount int64            `json:"posts_count"`
		Comments   []models.Comment `json:"comments"`
		Form       form             `json:"form"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "hello", body.Post.Text)
	assert.Equal(t, "leo", body.Author.Username)
	assert.Equal(t, int64(2), body.PostsCount)
	require.Len(t, body.Comments, 2)
	assert.Equal(t, "first!", body.Comments[0].Text)
	assert.Equal(t, "ann", body.Comments[0].Author.Username)
	assert.Equal(t, "text", body.Form.Fields[0].Name)
}

func TestAddComment(t *testing.T) {
	env := newTestEnv(t)
	leo := testutil.CreateUser(t, env.db, "leo")
	ann := testutil.CreateUser(t, env.db, "ann")
	post := testutil.CreatePost(t, env.db, leo, nil, "hello")
	path := fmt.Sprintf("/leo/%d/comment/", post.ID)
	detail := fmt.Sprintf("/leo/%d/", post.ID)

	t.Run("guest is redirected to login", func(t *testing.T) {
		resp := env.postForm(path, url.Values{"text": {"sneaky"}}, nil)
		requireRedirect(t, resp, "/auth/login/?next="+path)
		assert.Equal(t, int64(0), env.count(&models.Comment{}))
	})

	t.Run("blank text is ignored", func(t *testing.T) {
		resp := env.postForm(path, url.Values{"text": {"  "}}, env.login(ann))
		requireRedirect(t, resp, detail)
		assert.Equal(t, int64(0), env.count(&models.Comment{}))
	})

	t.Run("user comments", func(t *testing.T) {
		resp := env.postForm(path, url.Values{"text": {"nice post"}}, env.login(ann))
		requireRedirect(t, resp, detail)
		require.Equal(t, int64(1), env.count(&models.Comment{}))

		var c models.Comment
		require.NoError(t, env.db.First(&c).Error)
		assert.Equal(t, ann.ID, c.AuthorID)
		assert.Equal(t, post.ID, c.PostID)
		assert.Contains(t, env.publisher.published(), events.SubjectCommentCreated)
	})

	t.Run("missing post is not found", func(t *testing.T) {
		resp := env.postForm(fmt.Sprintf("/leo/%d/comment/", post.ID+100), url.Values{"text": {"hi"}}, env.login(ann))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestFollowAndUnfollow(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "leo")
	ann := testutil.CreateUser(t, env.db, "ann")
	cookie := env.login(ann)

	following := func() bool {
		resp := env.get("/leo/", cookie)
		var body struct {
			Following bool `json:"following"`
		}
		decodeJSON(t, resp, &body)
		return body.Following
	}

	requireRedirect(t, env.get("/leo/follow/", cookie), "/leo/")
	requireRedirect(t, env.get("/leo/follow/", cookie), "/leo/")
	assert.Equal(t, int64(1), env.count(&models.Follow{}))
	assert.True(t, following())

	requireRedirect(t, env.get("/leo/unfollow/", cookie), "/leo/")
	assert.Equal(t, int64(0), env.count(&models.Follow{}))
	assert.False(t, following())

	// Unfollowing again is a no-op.
	requireRedirect(t, env.get("/leo/unfollow/", cookie), "/leo/")

	requireRedirect(t, env.get("/ann/follow/", cookie), "/ann/")
	assert.Equal(t, int64(0), env.count(&models.Follow{}), "self-follow must not create an edge")

	assert.Equal(t, http.StatusNotFound, env.get("/ghost/follow/", cookie).StatusCode)
	requireRedirect(t, env.get("/leo/follow/", nil), "/auth/login/?next=/leo/follow/")
}

func TestFollowIndex(t *testing.T) {
	env := newTestEnv(t)
	leo := testutil.CreateUser(t, env.db, "leo")
	ann := testutil.CreateUser(t, env.db, "ann")
	bob := testutil.CreateUser(t, env.db, "bob")
	testutil.CreatePost(t, env.db, leo, nil, "from leo")
	testutil.CreatePost(t, env.db, bob, nil, "from bob")
	testutil.Follow(t, env.db, ann, leo)

	resp := env.get("/follow/", env.login(ann))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body listPayload
	decodeJSON(t, resp, &body)
	assert.Equal(t, []string{"from leo"}, postTexts(body.Page.Items))

	resp = env.get("/follow/", env.login(bob))
	decodeJSON(t, resp, &body)
	assert.Empty(t, body.Page.Items)

	requireRedirect(t, env.get("/follow/", nil), "/auth/login/?next=/follow/")
}

func TestEventsFlagDisablesPublishing(t *testing.T) {
	env := newTestEnv(t, withFeatureFlags("events=off"))
	leo := testutil.CreateUser(t, env.db, "leo")

	resp := env.postForm("/new/", url.Values{"text": {"quiet"}}, env.login(leo))
	requireRedirect(t, resp, "/")
	assert.Empty(t, env.publisher.published())
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
