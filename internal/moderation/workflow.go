// Package moderation drives observations from pending to verified or
// rejected and relocates confirmed photos into the species archive.
//
// Transitions:
//
//	pending -> verified  (ConfirmExisting, ConfirmNew)
//	pending -> rejected  (Reject)
//
// Both terminal states are final. Repeating the action that produced the
// current terminal state succeeds without side effects; any other action on
// a terminal observation is a conflict.
package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/events"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/observability/metrics"
)

// SpeciesResolver maps a scientific name to a species id, creating it if needed.
type SpeciesResolver interface {
	Resolve(ctx context.Context, scientificName string) (uint, error)
}

// FileArchive relocates photos.
type FileArchive interface {
	Exists(p string) bool
	Copy(src, dst string) error
	Remove(p string) error
	DestinationFor(scientificName string, observationID uint, src string) string
}

// ExistingSpecies selects the species for ConfirmExisting by id or by name.
// Exactly one of the two must be set.
type ExistingSpecies struct {
	SpeciesID      *uint
	ScientificName string
	Notes          *string
}

// NewSpecies describes the species ConfirmNew creates.
type NewSpecies struct {
	ScientificName string
	CommonName     *string
	IsEndangered   *bool
	Description    *string
	Notes          *string
}

// Outcome is the state after a moderation action.
type Outcome struct {
	Observation *entities.Observation
	Species     *entities.Species // nil for rejections
	ArchivedRef string            // archived copy written by this action, if any
	Changed     bool              // false for an idempotent repeat
}

// Workflow runs moderation actions.
type Workflow struct {
	repos     *repository.Repositories
	resolver  SpeciesResolver
	archive   FileArchive
	publisher events.Publisher
	metrics   metrics.Recorder
	log       logger.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithPublisher sets where moderation events go.
func WithPublisher(p events.Publisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(w *Workflow) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Workflow) { w.log = l }
}

// NewWorkflow creates a Workflow.
func NewWorkflow(repos *repository.Repositories, resolver SpeciesResolver, archive FileArchive, opts ...Option) *Workflow {
	w := &Workflow{
		repos:    repos,
		resolver: resolver,
		archive:  archive,
		metrics:  metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.Global().Module("moderation")
	}
	return w
}

// ConfirmExisting verifies observation id as an existing species. When that
// species has no canonical image yet, the observation photo is archived and
// becomes its image unless another confirmation set one first.
func (w *Workflow) ConfirmExisting(ctx context.Context, id uint, sel ExistingSpecies) (out *Outcome, err error) {
	defer w.track(metrics.OpConfirmExisting, time.Now(), &out, &err)

	name := strings.TrimSpace(sel.ScientificName)
	if (sel.SpeciesID == nil) == (name == "") {
		return nil, validation("provide either a species id or a scientific name")
	}

	obs, err := w.repos.Observations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	done, err := w.checkTerminal(obs, entities.StatusVerified)
	if err != nil {
		return nil, err
	}
	if done {
		return w.noop(ctx, obs), nil
	}

	sp, err := w.lookupSpecies(ctx, sel.SpeciesID, name)
	if err != nil {
		return nil, err
	}

	var copied string
	if !sp.HasImage() {
		copied, err = w.copyIfPresent(obs, sp.ScientificName)
		if err != nil {
			return nil, err
		}
	}

	imageSet := false
	err = w.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if copied != "" {
			set, err := tx.Species.SetImageIfUnset(ctx, sp.ID, copied)
			if err != nil {
				return err
			}
			imageSet = set
		}
		return tx.Observations.UpdateModeration(ctx, id, repository.ModerationUpdate{
			Status:    entities.StatusVerified,
			SpeciesID: &sp.ID,
			Notes:     sel.Notes,
		})
	})
	if err != nil {
		w.discard(ctx, copied)
		return w.afterLostRace(ctx, id, entities.StatusVerified, err)
	}

	if copied != "" && !imageSet {
		// Another confirmation set the image between our read and commit
		w.discard(ctx, copied)
		copied = ""
	}

	return w.committed(ctx, id, "confirm_existing", copied)
}

// ConfirmNew creates a species from ns, archives the observation photo as
// its image and verifies the observation. The photo must exist.
func (w *Workflow) ConfirmNew(ctx context.Context, id uint, ns NewSpecies) (out *Outcome, err error) {
	defer w.track(metrics.OpConfirmNew, time.Now(), &out, &err)

	name := strings.TrimSpace(ns.ScientificName)
	if name == "" {
		return nil, validation("scientific name is required")
	}

	obs, err := w.repos.Observations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	done, err := w.checkTerminal(obs, entities.StatusVerified)
	if err != nil {
		return nil, err
	}
	if done {
		return w.noop(ctx, obs), nil
	}

	if _, err := w.repos.Species.GetByScientificName(ctx, name); err == nil {
		return nil, duplicateSpecies(name)
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	if !w.archive.Exists(obs.ImageRef) {
		return nil, errors.New(errors.NewStd("observation photo is missing")).
			Component("moderation").
			Category(errors.CategoryFileIO).
			Context("observation_id", id).
			FileContext(obs.ImageRef).
			Build()
	}
	dst := w.archive.DestinationFor(name, obs.ID, obs.ImageRef)
	if err := w.copy(obs.ImageRef, dst); err != nil {
		return nil, err
	}

	sp := &entities.Species{
		ScientificName: name,
		CommonName:     trimmed(ns.CommonName),
		IsEndangered:   ns.IsEndangered,
		Description:    trimmed(ns.Description),
		ImageRef:       &dst,
	}
	err = w.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Species.Create(ctx, sp); err != nil {
			return err
		}
		return tx.Observations.UpdateModeration(ctx, id, repository.ModerationUpdate{
			Status:    entities.StatusVerified,
			SpeciesID: &sp.ID,
			Notes:     ns.Notes,
		})
	})
	if err != nil {
		w.discard(ctx, dst)
		if repository.IsDuplicateKey(err) {
			// A concurrent confirmation of this observation created the species
			if current, getErr := w.repos.Observations.GetByID(ctx, id); getErr == nil && current.Status == entities.StatusVerified {
				return w.noop(ctx, current), nil
			}
			return nil, duplicateSpecies(name)
		}
		return w.afterLostRace(ctx, id, entities.StatusVerified, err)
	}

	w.log.Info("species created by moderation",
		logger.String("scientific_name", name),
		logger.Uint64("species_id", uint64(sp.ID)))
	return w.committed(ctx, id, "confirm_new", dst)
}

// Reject moves a pending observation to rejected. Nothing else changes.
func (w *Workflow) Reject(ctx context.Context, id uint, notes *string) (out *Outcome, err error) {
	defer w.track(metrics.OpReject, time.Now(), &out, &err)
	return w.reject(ctx, id, notes)
}

func (w *Workflow) reject(ctx context.Context, id uint, notes *string) (*Outcome, error) {
	obs, err := w.repos.Observations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	done, err := w.checkTerminal(obs, entities.StatusRejected)
	if err != nil {
		return nil, err
	}
	if done {
		return w.noop(ctx, obs), nil
	}

	err = w.repos.Observations.UpdateModeration(ctx, id, repository.ModerationUpdate{
		Status: entities.StatusRejected,
		Notes:  notes,
	})
	if err != nil {
		return w.afterLostRace(ctx, id, entities.StatusRejected, err)
	}
	return w.committed(ctx, id, "reject", "")
}

// UpdateStatus applies a direct status change. Rejected behaves as Reject.
// Verified is only possible for an observation already bound to a species,
// which in practice means it is already verified. Pending only updates the
// notes of a pending observation.
func (w *Workflow) UpdateStatus(ctx context.Context, id uint, status entities.ModerationStatus, notes *string) (out *Outcome, err error) {
	defer w.track(metrics.OpUpdateStatus, time.Now(), &out, &err)

	switch status {
	case entities.StatusRejected:
		return w.reject(ctx, id, notes)
	case entities.StatusVerified, entities.StatusPending:
	default:
		return nil, validation("unknown status " + string(status))
	}

	obs, err := w.repos.Observations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	done, err := w.checkTerminal(obs, status)
	if err != nil {
		return nil, err
	}
	if done {
		return w.noop(ctx, obs), nil
	}

	if status == entities.StatusVerified {
		if obs.SpeciesID == nil {
			return nil, validation("verifying requires a confirmed species; use confirm")
		}
		err = w.repos.Observations.UpdateModeration(ctx, id, repository.ModerationUpdate{
			Status:    entities.StatusVerified,
			SpeciesID: obs.SpeciesID,
			Notes:     notes,
		})
		if err != nil {
			return w.afterLostRace(ctx, id, status, err)
		}
		return w.committed(ctx, id, "update_status", "")
	}

	// pending -> pending: notes only
	if notes != nil {
		err = w.repos.Observations.UpdateModeration(ctx, id, repository.ModerationUpdate{
			Status: entities.StatusPending,
			Notes:  notes,
		})
		if err != nil {
			return nil, err
		}
	}
	current, err := w.repos.Observations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Outcome{Observation: current, Changed: notes != nil}, nil
}

// checkTerminal reports done when obs already sits in target, a terminal
// state. It returns a conflict when obs sits in a different terminal state.
func (w *Workflow) checkTerminal(obs *entities.Observation, target entities.ModerationStatus) (bool, error) {
	if !obs.Status.Terminal() {
		return false, nil
	}
	if obs.Status == target {
		w.log.Debug("moderation repeat is a no-op",
			logger.Uint64("observation_id", uint64(obs.ID)),
			logger.String("status", string(obs.Status)))
		return true, nil
	}
	return false, alreadyModerated(obs.ID, obs.Status)
}

// noop builds the outcome for an observation that already reached the
// target state.
func (w *Workflow) noop(ctx context.Context, obs *entities.Observation) *Outcome {
	out := &Outcome{Observation: obs}
	if obs.SpeciesID != nil {
		if sp, err := w.repos.Species.GetByID(ctx, *obs.SpeciesID); err == nil {
			out.Species = sp
		}
	}
	return out
}

// afterLostRace handles a failed commit. When a concurrent action already
// moved the observation into target the result is the usual no-op.
func (w *Workflow) afterLostRace(ctx context.Context, id uint, target entities.ModerationStatus, err error) (*Outcome, error) {
	if !errors.Is(err, repository.ErrAlreadyModerated) {
		return nil, err
	}
	current, getErr := w.repos.Observations.GetByID(ctx, id)
	if getErr != nil {
		return nil, err
	}
	if current.Status == target {
		return w.noop(ctx, current), nil
	}
	return nil, alreadyModerated(id, current.Status)
}

// committed reloads the observation after a successful transition and
// publishes the moderation event.
func (w *Workflow) committed(ctx context.Context, id uint, action, archived string) (*Outcome, error) {
	obs, err := w.repos.Observations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Observation: obs, ArchivedRef: archived, Changed: true}
	if obs.SpeciesID != nil {
		sp, err := w.repos.Species.GetByID(ctx, *obs.SpeciesID)
		if err != nil {
			return nil, err
		}
		out.Species = sp
	}

	w.log.Info("observation moderated",
		logger.Uint64("observation_id", uint64(id)),
		logger.String("action", action),
		logger.String("status", string(obs.Status)))
	w.publish(out, action)
	return out, nil
}

func (w *Workflow) publish(out *Outcome, action string) {
	if w.publisher == nil {
		return
	}
	e := events.Event{
		Kind:          events.KindObservationModerated,
		ObservationID: out.Observation.ID,
		Status:        string(out.Observation.Status),
		SpeciesID:     out.Observation.SpeciesID,
		AutoFlagged:   out.Observation.AutoFlagged,
		ImageRef:      out.Observation.ImageRef,
		Action:        action,
	}
	if out.Species != nil {
		e.ScientificName = out.Species.ScientificName
	}
	if out.ArchivedRef != "" {
		e.ImageRef = out.ArchivedRef
	}
	if !w.publisher.TryPublish(e) {
		w.log.Debug("moderation event not delivered",
			logger.Uint64("observation_id", uint64(e.ObservationID)))
	}
}

func (w *Workflow) lookupSpecies(ctx context.Context, id *uint, name string) (*entities.Species, error) {
	if id != nil {
		return w.repos.Species.GetByID(ctx, *id)
	}
	resolved, err := w.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return w.repos.Species.GetByID(ctx, resolved)
}

// copyIfPresent archives the observation photo when it exists and returns
// the destination, or "" when there is no photo to copy.
func (w *Workflow) copyIfPresent(obs *entities.Observation, scientificName string) (string, error) {
	if obs.ImageRef == "" || !w.archive.Exists(obs.ImageRef) {
		w.log.Warn("observation photo missing, species image left unset",
			logger.Uint64("observation_id", uint64(obs.ID)),
			logger.String("image", obs.ImageRef))
		return "", nil
	}
	dst := w.archive.DestinationFor(scientificName, obs.ID, obs.ImageRef)
	if err := w.copy(obs.ImageRef, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (w *Workflow) copy(src, dst string) error {
	start := time.Now()
	err := w.archive.Copy(src, dst)
	w.metrics.RecordDuration(metrics.OpArchiveCopy, time.Since(start).Seconds())
	if err != nil {
		w.metrics.RecordOperation(metrics.OpArchiveCopy, metrics.StatusError)
		w.log.Error("archiving photo failed",
			logger.String("source", src),
			logger.String("destination", dst),
			logger.Error(err))
		return err
	}
	w.metrics.RecordOperation(metrics.OpArchiveCopy, metrics.StatusSuccess)
	return nil
}

// discard removes an archived copy unless a committed species uses it as its
// image. Archive paths are fixed per observation, so a concurrent
// confirmation of the same observation may have committed the same path.
func (w *Workflow) discard(ctx context.Context, p string) {
	if p == "" {
		return
	}
	inUse, err := w.repos.Species.ImageInUse(ctx, p)
	if err != nil {
		w.log.Warn("could not check archive copy, keeping it",
			logger.String("path", p),
			logger.Error(err))
		return
	}
	if inUse {
		return
	}
	if err := w.archive.Remove(p); err != nil {
		w.log.Warn("failed to remove orphaned archive copy",
			logger.String("path", p),
			logger.Error(err))
	}
}

func (w *Workflow) track(op string, start time.Time, out **Outcome, err *error) {
	w.metrics.RecordDuration(op, time.Since(start).Seconds())
	switch {
	case *err != nil:
		w.metrics.RecordOperation(op, metrics.StatusError)
		w.metrics.RecordError(op, string(errors.CategoryOf(*err)))
	case *out != nil && !(*out).Changed:
		w.metrics.RecordOperation(op, metrics.StatusNoop)
	default:
		w.metrics.RecordOperation(op, metrics.StatusSuccess)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
