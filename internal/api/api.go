package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
	"github.com/victornm/olympiad/internal/leaderboard"
	"github.com/victornm/olympiad/internal/proctoring"
	"github.com/victornm/olympiad/internal/registration"
	"github.com/victornm/olympiad/internal/session"
)

const maxCaptureBody = 4 << 20

type (
	Sessions interface {
		Open(ctx context.Context, req session.OpenRequest) (*session.Session, error)
		Get(quizID, participantID string) (*session.Session, error)
	}

	Registration interface {
		Login(ctx context.Context, req registration.LoginRequest) (*registration.LoginResponse, error)
		GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error)
	}

	Tokens interface {
		Parse(token string) (*domain.Participant, error)
	}

	Attempts interface {
		ListByParticipant(ctx context.Context, participantID string) ([]domain.Attempt, error)
	}

	Captures interface {
		SaveCapture(ctx context.Context, req proctoring.SaveCaptureRequest) (*domain.Capture, error)
	}

	LeaderboardService interface {
		GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
	}
)

type Config struct {
	HTTP gin.IRouter
	// GRPC is optional. When set, the health service is registered on it.
	GRPC *grpc.Server

	Sessions     Sessions
	Registration Registration
	Tokens       Tokens
	Attempts     Attempts
	Captures     Captures
	Leaderboard  LeaderboardService
}

type API struct {
	sessions     Sessions
	registration Registration
	tokens       Tokens
	attempts     Attempts
	captures     Captures
	leaderboard  LeaderboardService

	health *health.Server
}

func New(c Config) *API {
	a := &API{
		sessions:     c.Sessions,
		registration: c.Registration,
		tokens:       c.Tokens,
		attempts:     c.Attempts,
		captures:     c.Captures,
		leaderboard:  c.Leaderboard,
		health:       health.NewServer(),
	}

	// gRPC APIs
	if c.GRPC != nil {
		healthpb.RegisterHealthServer(c.GRPC, a.health)
	}

	// HTTP APIs
	v1 := c.HTTP.Group("/v1")
	v1.POST("/auth/login", a.Login)
	v1.GET("/quizzes/:quiz_id/leaderboard", a.GetLeaderboard)

	authed := v1.Group("", a.authenticate)
	authed.GET("/me", a.GetMe)
	authed.GET("/me/attempts", a.ListMyAttempts)

	s := authed.Group("/quizzes/:quiz_id/session")
	s.GET("", a.OpenSession)
	s.POST("/start", a.StartSession)
	s.PUT("/answers/:index", a.Answer)
	s.POST("/submit", a.Submit)
	s.POST("/violations", a.ReportViolation)
	s.POST("/monitor/reset", a.ResetMonitor)
	s.POST("/captures", a.SaveCapture)

	return a
}

// Shutdown marks the gRPC health service as not serving.
func (a *API) Shutdown() {
	a.health.Shutdown()
}

func (a *API) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, invalidBody(err))
		return
	}

	resp, err := a.registration.Login(c.Request.Context(), registration.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:       resp.Token,
		Participant: toParticipant(resp.Participant),
	})
}

// GetMe returns the registration of the caller, which may have changed since the token was issued.
func (a *API) GetMe(c *gin.Context) {
	p, err := a.registration.GetParticipant(c.Request.Context(), participantFrom(c).ParticipantID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toParticipant(*p))
}

func (a *API) ListMyAttempts(c *gin.Context) {
	p := participantFrom(c)

	as, err := a.attempts.ListByParticipant(c.Request.Context(), p.ParticipantID)
	if err != nil {
		renderError(c, err)
		return
	}

	resp := ListAttemptsResponse{Attempts: make([]Attempt, 0, len(as))}
	for _, at := range as {
		resp.Attempts = append(resp.Attempts, toAttempt(at))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) OpenSession(c *gin.Context) {
	s, err := a.sessions.Open(c.Request.Context(), session.OpenRequest{
		QuizID:      c.Param("quiz_id"),
		Participant: participantFrom(c),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(s.View()))
}

func (a *API) StartSession(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	if err := s.Start(c.Request.Context()); err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(s.View()))
}

func (a *API) Answer(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid question index %q", c.Param("index"))))
		return
	}

	var req struct {
		Option string `json:"option"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, invalidBody(err))
		return
	}

	s, ok := a.session(c)
	if !ok {
		return
	}

	if err := s.Answer(c.Request.Context(), index, req.Option); err != nil {
		renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) Submit(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	if _, err := s.Submit(c.Request.Context(), session.ReasonSubmitted); err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(s.View()))
}

func (a *API) ReportViolation(c *gin.Context) {
	var req struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, invalidBody(err))
		return
	}

	kind := domain.ViolationKind(req.Kind)
	if !proctoring.ValidKind(kind) {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown violation kind %q", req.Kind)))
		return
	}

	s, ok := a.session(c)
	if !ok {
		return
	}

	err := s.ReportViolation(c.Request.Context(), domain.Violation{Kind: kind, Detail: req.Detail})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(s.View()))
}

func (a *API) ResetMonitor(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	if err := s.ResetMonitor(); err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(s.View()))
}

func (a *API) SaveCapture(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	v := s.View()
	if v.State != session.StateInProgress {
		renderError(c, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidState),
			errors.WithMessagef("session is not in progress"),
		))
		return
	}

	img, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCaptureBody))
	if err != nil {
		renderError(c, invalidBody(err))
		return
	}

	capture, err := a.captures.SaveCapture(c.Request.Context(), proctoring.SaveCaptureRequest{
		AttemptID:     v.AttemptID,
		ParticipantID: participantFrom(c).ParticipantID,
		ContentType:   c.ContentType(),
		Image:         img,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Capture{
		CaptureID:   capture.CaptureID,
		AttemptID:   capture.AttemptID,
		CaptureTime: capture.CaptureTime,
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	var limit int64
	if l := c.Query("limit"); l != "" {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil || n < 0 {
			renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit %q", l)))
			return
		}
		limit = n
	}

	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		QuizID: c.Param("quiz_id"),
		Limit:  limit,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	resp := Leaderboard{
		QuizID:  l.QuizID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		resp.Entries = append(resp.Entries, LeaderboardEntry{
			ParticipantID: e.ParticipantID,
			Score:         e.Score,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// session returns the live session of the caller, opening it when this process has none.
func (a *API) session(c *gin.Context) (*session.Session, bool) {
	p := participantFrom(c)
	quizID := c.Param("quiz_id")

	s, err := a.sessions.Get(quizID, p.ParticipantID)
	if err != nil && errors.Convert(err).Code == errors.CodeNotFound {
		s, err = a.sessions.Open(c.Request.Context(), session.OpenRequest{
			QuizID:      quizID,
			Participant: p,
		})
	}
	if err != nil {
		renderError(c, err)
		return nil, false
	}

	return s, true
}

func invalidBody(err error) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request body"),
		errors.WithCause(err),
	)
}
