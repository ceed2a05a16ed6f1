package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custody/internal/acl"
	"custody/internal/document/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
)

type DocumentStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestDocumentStoreSuite(t *testing.T) {
	suite.Run(t, new(DocumentStoreSuite))
}

func (s *DocumentStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *DocumentStoreSuite) newDocument(owner id.PrincipalID, createdAt time.Time) *models.Document {
	doc, err := models.NewDocument(id.NewDocumentID(), owner, "cv", acl.ResourceResume, "cv.pdf", "application/pdf",
		[]byte{1, 2, 3}, strings.Repeat("0a", 16), createdAt)
	s.Require().NoError(err)
	return doc
}

func (s *DocumentStoreSuite) TestCreateFindDelete() {
	doc := s.newDocument(id.NewPrincipalID(), time.Now())
	s.Require().NoError(s.store.Create(s.ctx, doc))
	s.ErrorIs(s.store.Create(s.ctx, doc), sentinel.ErrConflict)

	found, err := s.store.FindByID(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.Ciphertext, found.Ciphertext)

	s.Require().NoError(s.store.Delete(s.ctx, doc.ID))
	_, err = s.store.FindByID(s.ctx, doc.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, doc.ID), sentinel.ErrNotFound)
}

func (s *DocumentStoreSuite) TestListByOwner() {
	owner := id.NewPrincipalID()
	base := time.Now()
	first := s.newDocument(owner, base)
	second := s.newDocument(owner, base.Add(time.Second))
	other := s.newDocument(id.NewPrincipalID(), base)
	for _, d := range []*models.Document{second, other, first} {
		s.Require().NoError(s.store.Create(s.ctx, d))
	}

	mine, err := s.store.List(s.ctx, models.ListFilter{OwnerID: owner})
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(first.ID, mine[0].ID)

	all, err := s.store.List(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *DocumentStoreSuite) TestAttest() {
	doc := s.newDocument(id.NewPrincipalID(), time.Now())
	s.Require().NoError(s.store.Create(s.ctx, doc))
	digestHex := strings.Repeat("ab", 32)

	s.Run("callback error leaves document unattested", func() {
		_, err := s.store.Attest(s.ctx, doc.ID, func(*models.Document) (*models.Attestation, error) {
			return nil, errors.New("decrypt failed")
		})
		s.Error(err)
		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.False(found.IsAttested())
	})

	s.Run("callback cannot mutate ciphertext", func() {
		updated, err := s.store.Attest(s.ctx, doc.ID, func(d *models.Document) (*models.Attestation, error) {
			d.Ciphertext[0] = 0xFF
			return &models.Attestation{Digest: digestHex, Signature: "sig", AttestedAt: time.Now()}, nil
		})
		s.Require().NoError(err)
		s.True(updated.IsAttested())
		s.Equal(byte(1), updated.Ciphertext[0])
	})

	s.Run("unknown document", func() {
		_, err := s.store.Attest(s.ctx, id.NewDocumentID(), func(*models.Document) (*models.Attestation, error) {
			return nil, nil
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent attestations serialize", func() {
		var (
			wg      sync.WaitGroup
			running atomic.Int32
			overlap atomic.Bool
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.store.Attest(s.ctx, doc.ID, func(*models.Document) (*models.Attestation, error) {
					if running.Add(1) > 1 {
						overlap.Store(true)
					}
					defer running.Add(-1)
					return &models.Attestation{Digest: digestHex, Signature: "sig", AttestedAt: time.Now()}, nil
				})
			}()
		}
		wg.Wait()
		s.False(overlap.Load())
	})
}
