package attendance

import (
	"context"
	"errors"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"golang.org/x/sync/errgroup"
)

// Upload is one image submitted for registration.
type Upload struct {
	Filename string
	Data     []byte
}

// Registration is the outcome of Register.
type Registration struct {
	Student       *database.Student
	Created       bool
	ImagesUsed    int
	ImagesSkipped int
}

type extracted struct {
	prepared  []byte
	embedding []float32
	err       error
}

// Register adds a student or replaces the embedding of an existing one.
// Every image is embedded; invalid ones are skipped. The first valid image
// becomes the representative image and the roster entry is written once per
// valid image in upload order, so the last valid image wins.
func (s *Service) Register(ctx context.Context, rawName string, uploads []Upload) (*Registration, error) {
	name := database.NormalizeStudentName(rawName)
	if name == "" {
		return nil, newError(KindInvalidInput, "name is required", nil)
	}
	if strings.EqualFold(name, constants.UnknownIdentity) {
		return nil, newError(KindInvalidInput, "name is reserved", nil)
	}
	if len(uploads) == 0 {
		return nil, newError(KindInvalidInput, "at least one image is required", nil)
	}

	results := s.extractAll(ctx, uploads)

	var valid []extracted
	var failures []error
	for i, r := range results {
		if r.err != nil {
			s.log.Warn("skipping registration image", "student", name, "file", uploads[i].Filename, "error", r.err)
			failures = append(failures, r.err)
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return nil, registrationFailure(failures)
	}

	unlock := s.locks.lock(name)
	defer unlock()

	existing, err := s.store.GetStudentByName(ctx, name)
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to load student", err)
	}

	ref, err := s.images.Save(ctx, valid[0].prepared)
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to store image", err)
	}

	var st *database.Student
	for _, v := range valid {
		st, err = s.store.UpsertStudent(ctx, name, v.embedding, ref)
		if err != nil {
			if delErr := s.images.Delete(ctx, ref); delErr != nil {
				s.log.Warn("failed to remove orphaned image", "ref", ref, "error", delErr)
			}
			return nil, newError(KindStorageFailed, "failed to save student", err)
		}
	}

	if existing != nil && existing.ImageRef != "" && existing.ImageRef != ref {
		if err := s.images.Delete(ctx, existing.ImageRef); err != nil {
			s.log.Warn("failed to delete replaced image", "student", name, "ref", existing.ImageRef, "error", err)
		}
	}

	if s.index != nil {
		entry := database.RosterEntry{StudentID: st.ID, Name: st.Name, Embedding: st.Embedding}
		if err := s.index.Add(entry); err != nil {
			s.log.Error("failed to update match index", "student", name, "error", err)
		}
	}

	s.log.Info("student registered", "student", name, "id", st.ID, "images_used", len(valid),
		"images_skipped", len(failures), "created", existing == nil)

	return &Registration{
		Student:       st,
		Created:       existing == nil,
		ImagesUsed:    len(valid),
		ImagesSkipped: len(failures),
	}, nil
}

// extractAll embeds uploads concurrently and keeps results in upload order.
func (s *Service) extractAll(ctx context.Context, uploads []Upload) []extracted {
	results := make([]extracted, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range uploads {
		g.Go(func() error {
			if len(uploads[i].Data) == 0 {
				results[i].err = newError(KindInvalidInput, "empty image", nil)
				return nil
			}
			prepared, emb, err := s.embed(ctx, uploads[i].Data)
			results[i] = extracted{prepared: prepared, embedding: emb, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// registrationFailure reports the most severe per-image failure.
func registrationFailure(failures []error) error {
	kind := KindInvalidInput
	for _, err := range failures {
		switch KindOf(err) {
		case KindExtractionFailed:
			return newError(KindExtractionFailed, "no valid images: face extraction failed", errors.Join(failures...))
		case KindNoFace:
			kind = KindNoFace
		}
	}
	if kind == KindNoFace {
		return newError(KindNoFace, "no valid images: no face detected", errors.Join(failures...))
	}
	return newError(KindInvalidInput, "no valid images", errors.Join(failures...))
}
