package httptransport_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	httptransport "userprofile/internal/transport/http"
	"userprofile/internal/transport/http/mocks"
	"userprofile/internal/users/models"
	"userprofile/internal/users/service"
	"userprofile/internal/users/store"
	"userprofile/pkg/testutil"
)

type recordingPublisher struct {
	created, updated []string
}

func (p *recordingPublisher) PublishUserCreated(_ context.Context, u *models.User) {
	p.created = append(p.created, u.ExternalID)
}

func (p *recordingPublisher) PublishUserUpdated(_ context.Context, u *models.User) {
	p.updated = append(p.updated, u.ExternalID)
}

type UserHandlerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	authz     *mocks.MockAuthorizer
	publisher *recordingPublisher
	router    http.Handler
}

func TestUserHandlerSuite(t *testing.T) {
	suite.Run(t, new(UserHandlerSuite))
}

func (s *UserHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.authz = mocks.NewMockAuthorizer(s.ctrl)
	s.publisher = &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := service.New(store.NewInMemory(), s.publisher, service.WithLogger(logger))
	s.router = httptransport.NewRouter(httptransport.RouterConfig{
		Users:    httptransport.NewUserHandler(users, s.authz, logger),
		Gatherer: prometheus.NewRegistry(),
		Checks: map[string]httptransport.HealthCheck{
			"bus": func(context.Context) error { return nil },
		},
		Logger: logger,
	})
}

func (s *UserHandlerSuite) do(method, path string, body any, withIdentity bool) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if withIdentity {
		testutil.AsCaller(req, "auth0|caller", "Admin", "User")
	}
	return testutil.DoRequest(s.router, req)
}

func (s *UserHandlerSuite) allow(path, operation string, allowed bool) {
	s.authz.EXPECT().
		IsAuthorized(gomock.Any(), "auth0|caller", []string{"Admin", "User"}, path, operation).
		Return(allowed)
}

func (s *UserHandlerSuite) create(externalID string) map[string]any {
	s.allow("/users", "write", true)
	w := s.do(http.MethodPost, "/users", service.CreateRequest{
		ExternalID:  externalID,
		Email:       "ada@example.com",
		DisplayName: "Ada Lovelace",
	}, true)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return *testutil.UnmarshalResponse[map[string]any](s.T(), w)
}

func (s *UserHandlerSuite) TestCreate() {
	body := s.create("auth0|ada")

	s.Equal("adalovelace", body["username"])
	s.Equal("Ada", body["first_name"])
	s.Equal([]string{"auth0|ada"}, s.publisher.created)
}

func (s *UserHandlerSuite) TestDeniedRequestsNeverReachTheService() {
	s.allow("/users", "write", false)

	w := s.do(http.MethodPost, "/users", `{"auth0_id":"auth0|x","email":"x@example.com"}`, true)
	s.Equal(http.StatusForbidden, w.Code)
	s.Empty(s.publisher.created)
}

func (s *UserHandlerSuite) TestMissingIdentity() {
	w := s.do(http.MethodPost, "/users", `{}`, false)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *UserHandlerSuite) TestGetAndUpdate() {
	created := s.create("auth0|ada")
	path := "/users/" + created["id"].(string)

	s.allow(path, "read", true)
	w := s.do(http.MethodGet, path, nil, true)
	s.Require().Equal(http.StatusOK, w.Code)

	s.allow(path, "write", true)
	w = s.do(http.MethodPatch, path, `{"picture_url":"https://img/ada.png"}`, true)
	s.Require().Equal(http.StatusOK, w.Code)
	body := *testutil.UnmarshalResponse[map[string]any](s.T(), w)
	s.Equal("https://img/ada.png", body["picture_url"])
	s.Equal("Ada Lovelace", body["display_name"])
	s.Equal([]string{"auth0|ada"}, s.publisher.updated)
}

func (s *UserHandlerSuite) TestListLookupAndDelete() {
	created := s.create("auth0|ada")
	s.create("auth0|grace")
	id := created["id"].(string)

	s.Run("list", func() {
		s.allow("/users", "read", true)
		w := s.do(http.MethodGet, "/users", nil, true)
		s.Require().Equal(http.StatusOK, w.Code)
		body := *testutil.UnmarshalResponse[[]map[string]any](s.T(), w)
		s.Len(body, 2)
	})

	s.Run("lookup by auth0 id", func() {
		s.allow("/users/auth0/auth0|ada", "read", true)
		w := s.do(http.MethodGet, "/users/auth0/auth0|ada", nil, true)
		s.Require().Equal(http.StatusOK, w.Code)
		body := *testutil.UnmarshalResponse[map[string]any](s.T(), w)
		s.Equal(id, body["id"])

		s.allow("/users/auth0/auth0|nobody", "read", true)
		w = s.do(http.MethodGet, "/users/auth0/auth0|nobody", nil, true)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("extra profile fields round trip", func() {
		s.allow("/users/"+id, "write", true)
		w := s.do(http.MethodPatch, "/users/"+id, `{"bio":"mathematician","phone_number":"+44 20 0000"}`, true)
		s.Require().Equal(http.StatusOK, w.Code)
		body := *testutil.UnmarshalResponse[map[string]any](s.T(), w)
		s.Equal("mathematician", body["bio"])
		s.Equal("+44 20 0000", body["phone_number"])
	})

	s.Run("delete requires the delete operation", func() {
		s.allow("/users/"+id, "delete", false)
		w := s.do(http.MethodDelete, "/users/"+id, nil, true)
		s.Equal(http.StatusForbidden, w.Code)

		s.allow("/users/"+id, "delete", true)
		w = s.do(http.MethodDelete, "/users/"+id, nil, true)
		s.Equal(http.StatusNoContent, w.Code)

		s.allow("/users/"+id, "delete", true)
		w = s.do(http.MethodDelete, "/users/"+id, nil, true)
		s.Equal(http.StatusNotFound, w.Code)
	})
}

func (s *UserHandlerSuite) TestErrorMapping() {
	s.create("auth0|ada")

	s.Run("duplicate", func() {
		s.allow("/users", "write", true)
		w := s.do(http.MethodPost, "/users", `{"auth0_id":"auth0|ada","email":"ada@example.com"}`, true)
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("malformed body", func() {
		s.allow("/users", "write", true)
		w := s.do(http.MethodPost, "/users", `{`, true)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("bad id", func() {
		s.allow("/users/not-a-uuid", "read", true)
		w := s.do(http.MethodGet, "/users/not-a-uuid", nil, true)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown user", func() {
		path := "/users/00000000-0000-0000-0000-000000000001"
		s.allow(path, "read", true)
		w := s.do(http.MethodGet, path, nil, true)
		s.Equal(http.StatusNotFound, w.Code)
	})
}

func (s *UserHandlerSuite) TestOperationalEndpoints() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health", nil, false).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/ready", nil, false).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", nil, false).Code)
}

func TestReadinessReportsFailingChecks(t *testing.T) {
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Checks: map[string]httptransport.HealthCheck{
			"redis": func(context.Context) error { return errors.New("down") },
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"redis":"unavailable"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
