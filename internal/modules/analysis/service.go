package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appcfg "github.com/codeverdict/core/internal/config"
	"github.com/codeverdict/core/internal/models"
	"github.com/codeverdict/core/internal/modules/github"
	"github.com/codeverdict/core/internal/modules/processing/ai"
	"github.com/codeverdict/core/internal/pkg/cache"
	"github.com/codeverdict/core/internal/pkg/response"
)

const defaultPollInterval = 500 * time.Millisecond

// Options tunes the pipeline.
type Options struct {
	RepoListTTL   time.Duration
	AnalysisTTL   time.Duration
	LeaseTTL      time.Duration
	PollInterval  time.Duration
	Concurrency   int
	TokenBudget   int
	CharsPerToken int
	Extensions    []string
	DecodePolicy  string
	Limits        ExtractLimits
}

// OptionsFromConfig reads the cache and analysis sections of cfg.
func OptionsFromConfig(cfg *appcfg.AppConfig) Options {
	return Options{
		RepoListTTL:   cfg.Cache.RepoListTTL(),
		AnalysisTTL:   cfg.Cache.AnalysisTTL(),
		LeaseTTL:      cfg.Cache.LeaseTTL(),
		PollInterval:  defaultPollInterval,
		Concurrency:   cfg.Analysis.Concurrency,
		TokenBudget:   cfg.Analysis.TokenBudget,
		CharsPerToken: cfg.Analysis.CharsPerToken,
		Extensions:    cfg.Analysis.Extensions,
		DecodePolicy:  cfg.Analysis.DecodePolicy,
		Limits: ExtractLimits{
			MaxFileBytes:  cfg.Analysis.MaxFileBytes,
			MaxTotalBytes: cfg.Analysis.MaxExtractedBytes,
		},
	}
}

// Deps are the collaborators of Service. Now defaults to time.Now.
type Deps struct {
	Store       Store
	Cache       cache.Store
	Credentials Credentials
	Host        Host
	Generator   ai.Generator
	Logger      *zap.Logger
	Now         func() time.Time
}

// Service runs the list / analyze / history operations.
type Service struct {
	store     Store
	cache     cache.Store
	creds     Credentials
	host      Host
	analyzer  *Analyzer
	extractor *Extractor
	chunker   *Chunker
	log       *zap.Logger
	now       func() time.Time
	opts      Options
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = appcfg.DefaultTokenBudget
	}
	return &Service{
		store:     deps.Store,
		cache:     deps.Cache,
		creds:     deps.Credentials,
		host:      deps.Host,
		analyzer:  NewAnalyzer(deps.Generator),
		extractor: NewExtractor(opts.Extensions, opts.DecodePolicy, opts.Limits),
		chunker:   NewChunker(opts.TokenBudget, opts.CharsPerToken),
		log:       deps.Logger.Named("analysis"),
		now:       deps.Now,
		opts:      opts,
	}
}

func (s *Service) timestamp() time.Time { return s.now().UTC().Truncate(time.Second) }

// ListRepositories returns the user's repositories, reconciling the first page
// of the hosting provider's listing with stored rows on a cache miss.
func (s *Service) ListRepositories(ctx context.Context, userID string) (*ListResult, error) {
	const op = "list repositories"
	if userID == "" {
		return nil, newError(KindAuth, op, errors.New("user is not signed in"))
	}

	var cached []RepositoryResult
	if s.cacheGet(ctx, reposKey(userID), &cached) {
		return &ListResult{Status: response.StatusSuccess, Source: SourceCache, Repositories: cached}, nil
	}

	token, err := s.accessToken(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	remote, err := s.host.ListRepositories(ctx, token)
	if err != nil {
		return nil, hostError(op, err)
	}
	stored, err := s.store.ListRepositories(ctx, userID)
	if err != nil {
		return nil, newError(KindPersistence, op, err)
	}

	known := make(map[string]struct{}, len(stored)+len(remote))
	for _, r := range stored {
		known[r.RepoURL] = struct{}{}
	}
	now := s.timestamp()
	var added []models.Repository
	for _, r := range remote {
		url, err := github.CanonicalURL(r.HTMLURL)
		if err != nil {
			s.log.Debug("skipping repository with unsupported url", zap.String("url", r.HTMLURL))
			continue
		}
		if _, ok := known[url]; ok {
			continue
		}
		known[url] = struct{}{}
		added = append(added, models.Repository{
			ID:        uuid.New().String(),
			RepoName:  r.Name,
			RepoURL:   url,
			UserID:    userID,
			CreatedAt: now,
		})
	}
	if err := s.store.InsertRepositories(ctx, added); err != nil {
		return nil, newError(KindPersistence, op, err)
	}

	all := append(stored, added...)
	out := make([]RepositoryResult, 0, len(all))
	for i := range all {
		out = append(out, toRepositoryResult(&all[i]))
	}
	s.cacheSet(ctx, reposKey(userID), s.opts.RepoListTTL, out)
	s.log.Info("repositories listed",
		zap.String("user_id", userID),
		zap.Int("remote", len(remote)),
		zap.Int("inserted", len(added)))
	return &ListResult{Status: response.StatusSuccess, Source: SourceFresh, Repositories: out}, nil
}

// AnalyzeRepository serves a cached or stored analysis when one exists and
// runs the pipeline otherwise.
func (s *Service) AnalyzeRepository(ctx context.Context, userID, locator, displayName string) (*AnalyzeResult, error) {
	return s.analyze(ctx, userID, locator, displayName, false)
}

// Reanalyze always runs the pipeline and replaces the cached payload.
func (s *Service) Reanalyze(ctx context.Context, userID, locator, displayName string) (*AnalyzeResult, error) {
	return s.analyze(ctx, userID, locator, displayName, true)
}

func (s *Service) analyze(ctx context.Context, userID, rawLocator, displayName string, refresh bool) (*AnalyzeResult, error) {
	const op = "analyze repository"
	if userID == "" {
		return nil, newError(KindAuth, op, errors.New("user is not signed in"))
	}
	loc, err := github.ParseLocator(rawLocator)
	if err != nil {
		return nil, newError(KindInvalidInput, op, err)
	}
	locator := loc.URL()
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = loc.Repo
	}
	key := analysisKey(userID, locator)
	log := s.log.With(zap.String("user_id", userID), zap.String("locator", locator))

	// staleID is the record a refresh must not be answered with.
	staleID := ""
	if refresh {
		if staleID, err = s.currentRecordID(ctx, userID, locator); err != nil {
			return nil, err
		}
	} else {
		if res, ok, err := s.lookup(ctx, userID, locator); err != nil || ok {
			if ok {
				log.Debug("analysis served", zap.String("source", res.Source))
			}
			return res, err
		}
	}

	lease, done, err := s.claim(ctx, userID, locator, staleID)
	if err != nil {
		return nil, err
	}
	if done != nil {
		log.Debug("analysis served by concurrent run", zap.String("analysis_id", done.AnalysisResults.ID))
		return payloadResult(*done, SourceCache), nil
	}
	defer s.release(ctx, lease)

	started := time.Now()
	token, err := s.accessToken(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	archive, err := s.host.DownloadArchive(ctx, token, loc)
	if err != nil {
		return nil, hostError("download archive", err)
	}
	files, err := s.extractor.Extract(archive)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, newError(KindExtract, "extract archive", errNoFiles)
	}
	batches := s.chunker.Chunk(files)
	log.Info("analysis started",
		zap.Int("archive_bytes", len(archive)),
		zap.Int("files", len(files)),
		zap.Int("batches", len(batches)))

	outcomes, err := s.analyzeBatches(ctx, batches)
	if err != nil {
		return nil, newError(KindAnalysis, op, err)
	}
	verdicts := make([]Verdict, 0, len(outcomes))
	var firstErr error
	for _, o := range outcomes {
		if o.Verdict == nil {
			log.Warn("batch produced no verdict", zap.Int("batch", o.Index), zap.Error(o.Err))
			if firstErr == nil {
				firstErr = o.Err
			}
			continue
		}
		verdicts = append(verdicts, *o.Verdict)
	}
	if len(verdicts) == 0 {
		return nil, newError(KindAnalysis, op, fmt.Errorf("no batch produced a verdict: %w", firstErr))
	}

	now := s.timestamp()
	rec := Aggregate("", verdicts, len(batches), now)
	repo := models.Repository{RepoName: name, RepoURL: locator, UserID: userID, CreatedAt: now, LastScannedAt: &now}
	if err := s.store.SaveAnalysis(ctx, &repo, &rec); err != nil {
		return nil, newError(KindPersistence, "save analysis", err)
	}

	p := analysisPayload{AnalysisResults: toAnalysisResult(&rec), BatchCount: rec.BatchCount, RepositoryID: repo.ID}
	s.cacheSet(ctx, key, s.opts.AnalysisTTL, p)
	if err := s.cache.Del(ctx, reposKey(userID)); err != nil {
		log.Warn("invalidate repository list failed", zap.Error(err))
	}
	log.Info("analysis finished",
		zap.Int("batches", len(batches)),
		zap.Int("verdicts", len(verdicts)),
		zap.Float64("score", rec.AuthenticityScore),
		zap.Duration("duration", time.Since(started)))
	return payloadResult(p, SourceFresh), nil
}

// lookup checks the cache, then the latest stored record.
func (s *Service) lookup(ctx context.Context, userID, locator string) (*AnalyzeResult, bool, error) {
	key := analysisKey(userID, locator)
	var p analysisPayload
	if s.cacheGet(ctx, key, &p) {
		return payloadResult(p, SourceCache), true, nil
	}

	repo, err := s.store.FindRepositoryByURL(ctx, userID, locator)
	if err != nil {
		return nil, false, newError(KindPersistence, "find repository", err)
	}
	if repo == nil {
		return nil, false, nil
	}
	rec, err := s.store.LatestAnalysis(ctx, repo.ID)
	if err != nil {
		return nil, false, newError(KindPersistence, "latest analysis", err)
	}
	if rec == nil {
		return nil, false, nil
	}
	p = analysisPayload{AnalysisResults: toAnalysisResult(rec), BatchCount: rec.BatchCount, RepositoryID: repo.ID}
	s.cacheSet(ctx, key, s.opts.AnalysisTTL, p)
	return payloadResult(p, SourceDatabase), true, nil
}

// currentRecordID returns the id of the analysis a lookup would serve, or "".
func (s *Service) currentRecordID(ctx context.Context, userID, locator string) (string, error) {
	var p analysisPayload
	if s.cacheGet(ctx, analysisKey(userID, locator), &p) {
		return p.AnalysisResults.ID, nil
	}
	repo, err := s.store.FindRepositoryByURL(ctx, userID, locator)
	if err != nil {
		return "", newError(KindPersistence, "find repository", err)
	}
	if repo == nil {
		return "", nil
	}
	rec, err := s.store.LatestAnalysis(ctx, repo.ID)
	if err != nil {
		return "", newError(KindPersistence, "latest analysis", err)
	}
	if rec == nil {
		return "", nil
	}
	return rec.ID, nil
}

// finished returns the cached payload when it holds a record other than staleID.
func (s *Service) finished(ctx context.Context, userID, locator, staleID string) *analysisPayload {
	var p analysisPayload
	if !s.cacheGet(ctx, analysisKey(userID, locator), &p) || p.AnalysisResults.ID == staleID {
		return nil
	}
	return &p
}

// claim takes the per-locator lease, or returns the payload of a run that
// finished while this one waited or just before it got the lease. Payloads
// holding staleID are ignored. A failing cache degrades to running without a
// lease.
func (s *Service) claim(ctx context.Context, userID, locator, staleID string) (*cache.Lease, *analysisPayload, error) {
	key := leaseKey(userID, locator)
	for {
		lease, err := cache.Acquire(ctx, s.cache, key, s.opts.LeaseTTL)
		switch {
		case err == nil:
			if p := s.finished(ctx, userID, locator, staleID); p != nil {
				s.release(ctx, lease)
				return nil, p, nil
			}
			return lease, nil, nil
		case !errors.Is(err, cache.ErrLeaseHeld):
			s.log.Warn("lease unavailable, continuing without it", zap.String("key", key), zap.Error(err))
			return nil, nil, nil
		}

		timer := time.NewTimer(s.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, newError(KindAnalysis, "wait for concurrent analysis", ctx.Err())
		case <-timer.C:
		}
		if p := s.finished(ctx, userID, locator, staleID); p != nil {
			return nil, p, nil
		}
	}
}

func (s *Service) release(ctx context.Context, lease *cache.Lease) {
	if lease == nil {
		return
	}
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("release lease failed", zap.String("key", lease.Key()), zap.Error(err))
	}
}

// analyzeBatches fans batches out to the analyzer and collects one outcome per
// batch, in batch order. Only cancellation of ctx is returned as an error.
func (s *Service) analyzeBatches(ctx context.Context, batches []Batch) ([]BatchOutcome, error) {
	outcomes := make([]BatchOutcome, len(batches))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range batches {
		b := batches[i]
		g.Go(func() error {
			v, err := s.analyzer.Analyze(ctx, b)
			outcomes[b.Index] = BatchOutcome{Index: b.Index, Verdict: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// GetAnalysis lists every analysis of a repository owned by userID, newest first.
func (s *Service) GetAnalysis(ctx context.Context, userID, repositoryID string) (*HistoryResult, error) {
	const op = "get analysis"
	if userID == "" {
		return nil, newError(KindAuth, op, errors.New("user is not signed in"))
	}
	repositoryID = strings.TrimSpace(repositoryID)
	if repositoryID == "" {
		return nil, newError(KindInvalidInput, op, errors.New("repository id is required"))
	}
	repo, err := s.store.FindRepositoryByID(ctx, userID, repositoryID)
	if err != nil {
		return nil, newError(KindPersistence, op, err)
	}
	if repo == nil {
		return nil, newError(KindNotFound, op, fmt.Errorf("repository %s not found", repositoryID))
	}
	recs, err := s.store.ListAnalyses(ctx, repo.ID)
	if err != nil {
		return nil, newError(KindPersistence, op, err)
	}
	out := make([]AnalysisResult, 0, len(recs))
	for i := range recs {
		out = append(out, toAnalysisResult(&recs[i]))
	}
	return &HistoryResult{Status: response.StatusSuccess, RepositoryID: repo.ID, Analyses: out}, nil
}

func (s *Service) accessToken(ctx context.Context, op, userID string) (string, error) {
	token, err := s.creds.AccessToken(ctx, userID)
	switch {
	case errors.Is(err, github.ErrMissingToken):
		return "", newError(KindAuth, op, err)
	case err != nil:
		return "", newError(KindPersistence, "load credential", err)
	case token == "":
		return "", newError(KindAuth, op, github.ErrMissingToken)
	}
	return token, nil
}

func hostError(op string, err error) error {
	switch {
	case errors.Is(err, github.ErrInvalidLocator):
		return newError(KindInvalidInput, op, err)
	case github.IsUnauthorized(err), errors.Is(err, github.ErrMissingToken):
		return newError(KindAuth, op, err)
	case github.IsNotFound(err):
		return newError(KindNotFound, op, err)
	case github.IsRateLimited(err):
		return newError(KindFetch, op+" (rate limited)", err)
	default:
		return newError(KindFetch, op, err)
	}
}

func payloadResult(p analysisPayload, source string) *AnalyzeResult {
	return &AnalyzeResult{
		Status:          response.StatusSuccess,
		Source:          source,
		BatchCount:      p.BatchCount,
		AnalysisResults: p.AnalysisResults,
		RepositoryID:    p.RepositoryID,
	}
}
