package notes

import (
	"context"
	"time"

	"github.com/kuitang/tagnotes/internal/db"
	"github.com/kuitang/tagnotes/internal/errs"
	"github.com/kuitang/tagnotes/internal/logutil"
	"github.com/kuitang/tagnotes/internal/obs"
)

// maxLogChars bounds user-supplied text in log lines.
const maxLogChars = 64

// Storage is the persistence contract the service depends on.
// *db.Store satisfies it.
type Storage interface {
	ListAll(ctx context.Context) ([]db.Note, error)
	ListByTag(ctx context.Context, tag string) ([]db.Note, error)
	Get(ctx context.Context, id int64) (*db.Note, error)
	Insert(ctx context.Context, title, content string, tags []string) (*db.Note, error)
	Update(ctx context.Context, id int64, title, content string, tags []string) (db.UpdateResult, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ListTags(ctx context.Context) ([]string, error)
}

// Cache is an optional read-through cache for single notes and the tag list.
// Reads also return the entry's generation; a fill presents the generation
// seen before storage was read and is dropped if an Invalidate came between.
type Cache interface {
	GetNote(ctx context.Context, id int64) (note *Note, gen int64, hit bool, err error)
	SetNote(ctx context.Context, note *Note, gen int64) error
	GetTags(ctx context.Context) (tags []string, gen int64, hit bool, err error)
	SetTags(ctx context.Context, tags []string, gen int64) error
	// Invalidate drops the cached note id and the cached tag list.
	Invalidate(ctx context.Context, id int64) error
}

// Observer receives per-operation outcomes, e.g. for metrics.
type Observer interface {
	ObserveOp(op string, code string, elapsed time.Duration)
	ObserveCache(kind string, hit bool)
}

// Service handles note CRUD operations on top of Storage.
type Service struct {
	store    Storage
	cache    Cache
	observer Observer
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables cache-aside reads for Get and ListTags.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithObserver reports operation outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a new notes service.
func NewService(store Storage, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAll returns all notes, most recently updated first.
func (s *Service) ListAll(ctx context.Context) (_ []Note, err error) {
	defer s.observe("list", time.Now(), &err)

	rows, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, errs.Storage("list notes", err)
	}
	return fromRows(rows), nil
}

// ListByTag returns notes whose tags contain tag exactly, most recently
// updated first. Callers lowercase tag for case-insensitive matching.
func (s *Service) ListByTag(ctx context.Context, tag string) (_ []Note, err error) {
	defer s.observe("list_by_tag", time.Now(), &err)

	rows, err := s.store.ListByTag(ctx, tag)
	if err != nil {
		return nil, errs.Storage("list notes by tag", err)
	}
	return fromRows(rows), nil
}

// Get retrieves a note by id.
func (s *Service) Get(ctx context.Context, id int64) (_ *Note, err error) {
	defer s.observe("get", time.Now(), &err)

	note, fill := s.cachedNote(ctx, id)
	if note != nil {
		return note, nil
	}

	note, err = s.load(ctx, id, "get note")
	if err != nil {
		return nil, err
	}
	fill(note)
	return note, nil
}

// ListTags returns the distinct tags across all notes in lexicographic order.
func (s *Service) ListTags(ctx context.Context) (_ []string, err error) {
	defer s.observe("list_tags", time.Now(), &err)

	var (
		gen     int64
		canFill bool
	)
	if s.cache != nil {
		tags, g, hit, cerr := s.cache.GetTags(ctx)
		s.observeCache("tags", hit && cerr == nil)
		switch {
		case cerr != nil:
			obs.From(ctx).Warn("tag cache read failed", "error", cerr)
		case hit:
			return tags, nil
		default:
			gen, canFill = g, true
		}
	}

	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, errs.Storage("list tags", err)
	}
	if canFill {
		if cerr := s.cache.SetTags(ctx, tags, gen); cerr != nil {
			obs.From(ctx).Warn("tag cache write failed", "error", cerr)
		}
	}
	return tags, nil
}

// Create validates in, normalizes its tags and persists a new note.
func (s *Service) Create(ctx context.Context, in NoteInput) (_ *Note, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := Validate(in); err != nil {
		return nil, err
	}
	tags := ProcessTags(in.Tags)

	row, err := s.store.Insert(ctx, *in.Title, *in.Content, tags)
	if err != nil {
		return nil, errs.Storage("create note", err)
	}
	s.invalidate(ctx, row.ID)

	obs.From(ctx).Info("note created",
		"note_id", row.ID,
		"title", logutil.TruncateForLog(row.Title, maxLogChars),
		"tags", logutil.TruncateListForLog(tags, maxLogChars),
	)
	return fromRow(row), nil
}

// Update replaces title, content and tags of note id.
// A missing note is reported before the input is validated.
func (s *Service) Update(ctx context.Context, id int64, in NoteInput) (_ *Note, err error) {
	defer s.observe("update", time.Now(), &err)

	existing, err := s.load(ctx, id, "update note")
	if err != nil {
		return nil, err
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	tags := ProcessTags(in.Tags)

	res, err := s.store.Update(ctx, id, *in.Title, *in.Content, tags)
	if err != nil {
		return nil, errs.Storage("update note", err)
	}
	// Deleted between the existence check and the write.
	if !res.Changed {
		s.invalidate(ctx, id)
		return nil, notFound()
	}
	s.invalidate(ctx, id)

	obs.From(ctx).Info("note updated",
		"note_id", id,
		"tags", logutil.TruncateListForLog(tags, maxLogChars),
	)
	return &Note{
		ID:        id,
		Title:     *in.Title,
		Content:   *in.Content,
		Tags:      tags,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: db.UnixMilli(res.UpdatedAt),
	}, nil
}

// Delete permanently removes note id.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if _, err := s.load(ctx, id, "delete note"); err != nil {
		return err
	}
	changed, err := s.store.Delete(ctx, id)
	if err != nil {
		return errs.Storage("delete note", err)
	}
	s.invalidate(ctx, id)
	if !changed {
		return notFound()
	}

	obs.From(ctx).Info("note deleted", "note_id", id)
	return nil
}

// load reads note id from storage, bypassing the cache.
func (s *Service) load(ctx context.Context, id int64, op string) (*Note, error) {
	row, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	if row == nil {
		return nil, notFound()
	}
	return fromRow(row), nil
}

func notFound() error {
	return &errs.Error{Code: errs.NotFound, Message: "note not found", Field: "id"}
}

// cachedNote returns the cached note, or nil and a func that fills the
// cache with what storage returns. The fill is a no-op without a cache or
// after a failed cache read.
func (s *Service) cachedNote(ctx context.Context, id int64) (*Note, func(*Note)) {
	noFill := func(*Note) {}
	if s.cache == nil {
		return nil, noFill
	}
	note, gen, hit, err := s.cache.GetNote(ctx, id)
	s.observeCache("note", hit && err == nil)
	if err != nil {
		obs.From(ctx).Warn("note cache read failed", "note_id", id, "error", err)
		return nil, noFill
	}
	if hit {
		return note, noFill
	}
	return nil, func(n *Note) {
		if err := s.cache.SetNote(ctx, n, gen); err != nil {
			obs.From(ctx).Warn("note cache write failed", "note_id", id, "error", err)
		}
	}
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		obs.From(ctx).Warn("cache invalidation failed", "note_id", id, "error", err)
	}
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	if s.observer == nil {
		return
	}
	code := "ok"
	if err != nil {
		code = string(errs.CodeOf(err))
	}
	s.observer.ObserveOp(op, code, time.Since(start))
}

func (s *Service) observeCache(kind string, hit bool) {
	if s.observer != nil {
		s.observer.ObserveCache(kind, hit)
	}
}
