package devapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const contextKeyUser = "user"

type detail struct {
	Detail string `json:"detail"`
}

// authenticate resolves an optional bearer token. A missing header leaves
// the request anonymous; a header with an unknown or expired token is
// rejected with 401 on every post route.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return next(c)
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.JSON(http.StatusUnauthorized, detail{"Authorization header must contain a bearer token."})
		}

		userID, err := lookupToken(s.db, token, kindAccess)
		if errors.Is(err, ErrInvalidToken) {
			return c.JSON(http.StatusUnauthorized, detail{"Given token not valid for any token type"})
		}
		if err != nil {
			return s.internalError(c, err)
		}

		user, err := getUserByID(s.db, userID)
		if err != nil {
			return s.internalError(c, err)
		}
		c.Set(contextKeyUser, user)
		return next(c)
	}
}

// requireUser rejects anonymous requests.
func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if currentUser(c) == nil {
			return c.JSON(http.StatusUnauthorized, detail{"Authentication credentials were not provided."})
		}
		return next(c)
	}
}

func currentUser(c echo.Context) *User {
	user, _ := c.Get(contextKeyUser).(*User)
	return user
}

func (s *Server) internalError(c echo.Context, err error) error {
	s.log.Error("devapi handler failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, detail{"A server error occurred."})
}

func (s *Server) login(c echo.Context) error {
	if !s.limiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, detail{"Request was throttled."})
	}

	var req credentials
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail{"Malformed request body."})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string][]string{
			"non_field_errors": {"Username and password are required."},
		})
	}

	user, err := authenticate(s.db, req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return c.JSON(http.StatusUnauthorized, detail{"No active account found with the given credentials"})
	}
	if err != nil {
		return s.internalError(c, err)
	}

	return s.issuePair(c, http.StatusOK, user)
}

func (s *Server) register(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail{"Malformed request body."})
	}
	if errs := validateRegistration(req); errs != nil {
		return c.JSON(http.StatusBadRequest, errs)
	}

	user, err := createUser(s.db, req.Username, req.Email, req.Password)
	if errors.Is(err, ErrUsernameTaken) {
		return c.JSON(http.StatusBadRequest, map[string][]string{
			"username": {"A user with that username already exists."},
		})
	}
	if err != nil {
		return s.internalError(c, err)
	}

	s.log.Info("registered user", "username", user.Username)
	return s.issuePair(c, http.StatusCreated, user)
}

func (s *Server) issuePair(c echo.Context, status int, user *User) error {
	access, err := issueToken(s.db, user.ID, kindAccess, s.cfg.AccessTTL)
	if err != nil {
		return s.internalError(c, err)
	}
	refresh, err := issueToken(s.db, user.ID, kindRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(status, authResponse{Access: access, Refresh: refresh, User: *user})
}

func (s *Server) refresh(c echo.Context) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return c.JSON(http.StatusBadRequest, map[string][]string{
			"refresh": {"This field is required."},
		})
	}

	userID, err := lookupToken(s.db, req.Refresh, kindRefresh)
	if errors.Is(err, ErrInvalidToken) {
		return c.JSON(http.StatusUnauthorized, detail{"Token is invalid or expired"})
	}
	if err != nil {
		return s.internalError(c, err)
	}

	access, err := issueToken(s.db, userID, kindAccess, s.cfg.AccessTTL)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"access": access})
}

func (s *Server) listPosts(c echo.Context) error {
	if !s.cfg.Paginate {
		posts, err := listPosts(s.db, 0, 0)
		if err != nil {
			return s.internalError(c, err)
		}
		return c.JSON(http.StatusOK, posts)
	}

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusNotFound, detail{"Invalid page."})
		}
		page = n
	}

	total, err := countPosts(s.db)
	if err != nil {
		return s.internalError(c, err)
	}
	offset := (page - 1) * s.cfg.PageSize
	if page > 1 && offset >= total {
		return c.JSON(http.StatusNotFound, detail{"Invalid page."})
	}

	posts, err := listPosts(s.db, s.cfg.PageSize, offset)
	if err != nil {
		return s.internalError(c, err)
	}

	resp := postPage{Count: total, Results: posts}
	if offset+len(posts) < total {
		resp.Next = pageLink(c, page+1)
	}
	if page > 1 {
		resp.Previous = pageLink(c, page-1)
	}
	return c.JSON(http.StatusOK, resp)
}

func pageLink(c echo.Context, page int) *string {
	link := fmt.Sprintf("%s://%s%s?page=%d", c.Scheme(), c.Request().Host, c.Request().URL.Path, page)
	return &link
}

func (s *Server) getPost(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, detail{"Not found."})
	}

	post, err := getPost(s.db, id)
	if err != nil {
		return s.postError(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) createPost(c echo.Context) error {
	in, errs := bindPostInput(c)
	if errs != nil {
		return c.JSON(http.StatusBadRequest, errs)
	}

	post, err := createPost(s.db, currentUser(c).ID, in)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusCreated, post)
}

func (s *Server) updatePost(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, detail{"Not found."})
	}
	in, errs := bindPostInput(c)
	if errs != nil {
		return c.JSON(http.StatusBadRequest, errs)
	}

	post, err := updatePost(s.db, id, currentUser(c).ID, in)
	if err != nil {
		return s.postError(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) deletePost(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, detail{"Not found."})
	}

	if err := deletePost(s.db, id, currentUser(c).ID); err != nil {
		return s.postError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) postError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, detail{"Not found."})
	case errors.Is(err, ErrForbidden):
		return c.JSON(http.StatusForbidden, detail{"You do not have permission to perform this action."})
	default:
		return s.internalError(c, err)
	}
}

func postID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func bindPostInput(c echo.Context) (PostInput, map[string][]string) {
	var in PostInput
	if err := c.Bind(&in); err != nil {
		return in, map[string][]string{"non_field_errors": {"Malformed request body."}}
	}

	errs := make(map[string][]string)
	if strings.TrimSpace(in.Title) == "" {
		errs["title"] = []string{"This field may not be blank."}
	}
	if strings.TrimSpace(in.Content) == "" {
		errs["content"] = []string{"This field may not be blank."}
	}
	if len(errs) > 0 {
		return in, errs
	}
	return in, nil
}
