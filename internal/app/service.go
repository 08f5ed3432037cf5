package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"notable/api/internal/auth"
	"notable/api/internal/cache"
	"notable/api/internal/config"
	"notable/api/internal/identity"
	"notable/api/internal/search"
	"notable/api/internal/store"
	"notable/api/internal/summarize"
	"notable/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	EnsureProfile(context.Context, store.Profile) (bool, error)
	GetProfile(context.Context, string) (store.Profile, error)
	ListNotesByOwner(context.Context, string) ([]store.Note, error)
	GetNote(context.Context, string, string) (store.Note, error)
	InsertNote(context.Context, store.Note) (store.Note, error)
	UpdateNote(context.Context, string, string, string, string) (store.Note, error)
	UpdateNoteSummary(context.Context, string, string, string) (store.Note, error)
	DeleteNote(context.Context, string, string) error
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. The Postgres store implements it too,
// so Redis stays optional.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
}

type identityClient interface {
	Exchange(ctx context.Context, code string) (identity.Session, error)
}

type noteSummarizer interface {
	Summarize(ctx context.Context, text string) (summarize.Result, error)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	identity   identityClient
	summarizer noteSummarizer
	cache      *cache.Cache
	search     *search.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, identityClient *identity.Client, summarizer *summarize.Service, readCache *cache.Cache, searchService *search.Service) *Service {
	return &Service{
		cfg:        cfg,
		store:      dataStore,
		sessions:   dataStore,
		identity:   identityClient,
		summarizer: summarizer,
		cache:      readCache,
		search:     searchService,
	}
}

// NewWithSessionStore keeps refresh tokens in the given store (Redis)
// instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, identityClient *identity.Client, summarizer *summarize.Service, readCache *cache.Cache, searchService *search.Service) *Service {
	service := New(cfg, dataStore, identityClient, summarizer, readCache, searchService)
	service.sessions = sessions
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CompleteLogin finishes the OAuth redirect: exchange the code, make sure a
// profile row exists for the identity, and issue an API session. Safe to
// invoke any number of times for the same identity - the profile insert is
// conditional and an existing row is never written to, so user-edited
// fields survive repeated logins.
func (s *Service) CompleteLogin(ctx context.Context, code string) (Session, error) {
	ident, err := s.identity.Exchange(ctx, code)
	if err != nil {
		// Single attempt. Nothing has been written at this point.
		return Session{}, domainError(http.StatusUnauthorized, "AUTH_EXCHANGE_FAILED", "Could not complete sign-in", nil)
	}

	if _, err := s.store.EnsureProfile(ctx, store.Profile{
		ID:        ident.UserID,
		FullName:  ident.Metadata["full_name"],
		AvatarURL: ident.Metadata["avatar_url"],
	}); err != nil {
		return Session{}, err
	}

	// Read back rather than trusting the metadata: on a repeat login the
	// stored profile may carry a name the user edited since.
	profile, err := s.store.GetProfile(ctx, ident.UserID)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, profile)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  profile.ID,
		Name: profile.FullName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), profile.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       profile.ID,
		UserName:     profile.FullName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (map[string]any, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileJSON(profile), nil
}

// ListNotes serves from the read cache when it holds a fresh entry, and
// repopulates it after a store read.
func (s *Service) ListNotes(ctx context.Context, ownerID string) ([]map[string]any, error) {
	if notes, ok := s.cache.GetNoteList(ctx, ownerID); ok {
		return notesJSON(notes), nil
	}

	notes, err := s.store.ListNotesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.cache.SetNoteList(ctx, ownerID, notes)
	return notesJSON(notes), nil
}

func (s *Service) GetNote(ctx context.Context, noteID, ownerID string) (map[string]any, error) {
	if note, ok := s.cache.GetNote(ctx, noteID, ownerID); ok {
		return noteJSON(note), nil
	}

	note, err := s.store.GetNote(ctx, noteID, ownerID)
	if err != nil {
		return nil, err
	}
	s.cache.SetNote(ctx, note)
	return noteJSON(note), nil
}

func (s *Service) CreateNote(ctx context.Context, ownerID, title, content string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and content are required", nil)
	}

	note, err := s.store.InsertNote(ctx, store.Note{
		ID:      util.NewID("note"),
		OwnerID: ownerID,
		Title:   title,
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, ownerID, note.ID)
	s.indexNote(note)
	return noteJSON(note), nil
}

func (s *Service) UpdateNote(ctx context.Context, noteID, ownerID, title, content string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and content are required", nil)
	}

	note, err := s.store.UpdateNote(ctx, noteID, ownerID, title, content)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, ownerID, noteID)
	s.indexNote(note)
	return noteJSON(note), nil
}

// DeleteNote reports success whether or not the row still existed.
func (s *Service) DeleteNote(ctx context.Context, noteID, ownerID string) error {
	if err := s.store.DeleteNote(ctx, noteID, ownerID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, ownerID, noteID)
	if s.search != nil {
		s.search.DeleteNote(noteID)
	}
	return nil
}

// SummarizeNote produces a summary of the note's content and persists it
// onto the summary field. Whatever path produced the text - model reply,
// extractive fallback, or sentinel - it is stored and surfaced as-is.
func (s *Service) SummarizeNote(ctx context.Context, noteID, ownerID string) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID, ownerID)
	if err != nil {
		return nil, err
	}

	result, err := s.summarizer.Summarize(ctx, note.Content)
	if err != nil {
		// The only summarizer error is input validation; it happens before
		// any network call.
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	updated, err := s.store.UpdateNoteSummary(ctx, noteID, ownerID, result.Text)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, ownerID, noteID)
	s.indexNote(updated)

	payload := noteJSON(updated)
	payload["summarySource"] = string(result.Source)
	return payload, nil
}

func (s *Service) SearchNotes(ctx context.Context, ownerID, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{
		Text:    text,
		OwnerID: ownerID,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Service) indexNote(note store.Note) {
	if s.search == nil {
		return
	}
	summary := ""
	if note.Summary != nil {
		summary = *note.Summary
	}
	s.search.IndexNote(search.NoteRecord{
		ID:      note.ID,
		OwnerID: note.OwnerID,
		Title:   note.Title,
		Content: note.Content,
		Summary: summary,
	})
}

func profileJSON(profile store.Profile) map[string]any {
	return map[string]any{
		"id":        profile.ID,
		"fullName":  profile.FullName,
		"avatarUrl": profile.AvatarURL,
		"createdAt": profile.CreatedAt,
		"updatedAt": profile.UpdatedAt,
	}
}

func noteJSON(note store.Note) map[string]any {
	var summary any
	if note.Summary != nil {
		summary = *note.Summary
	}
	return map[string]any{
		"id":        note.ID,
		"ownerId":   note.OwnerID,
		"title":     note.Title,
		"content":   note.Content,
		"summary":   summary,
		"createdAt": note.CreatedAt,
		"updatedAt": note.UpdatedAt,
	}
}

func notesJSON(notes []store.Note) []map[string]any {
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, noteJSON(note))
	}
	return items
}
