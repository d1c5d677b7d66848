// Package certificate issues and verifies workshop completion certificates.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/monitoring"
	"github.com/dnacommunity/backend/internal/util"
)

var (
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrWorkshopNotFound    = errors.New("workshop not found")
	ErrAccessDenied        = errors.New("access to this certificate is denied")
	ErrNotCreator          = errors.New("only the workshop creator can do this")
	ErrNoURL               = errors.New("certificate has no download url")
)

type Manager struct {
	logger   *slog.Logger
	store    docstore.Store
	renderer Renderer
	metrics  *monitoring.Metrics
	now      func() time.Time
}

func NewManager(logger *slog.Logger, store docstore.Store, renderer Renderer, metrics *monitoring.Metrics) Manager {
	return Manager{logger: logger, store: store, renderer: renderer, metrics: metrics, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// VerificationCode returns DNA-<unix ms in base36>-<8 random base36 chars>.
func VerificationCode(now time.Time) (string, error) {
	random, err := util.RandomBase36(8)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return "DNA-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + strings.ToUpper(random), nil
}

type IssueParams struct {
	WorkshopID    string
	WorkshopTitle string
	UserID        string
	UserName      string
	CreatorName   string
	Duration      int
	CompletedAt   time.Time
}

// Issue creates the certificate for a completed enrollment and links it to
// the enrollment. A user holds at most one certificate per workshop; issuing
// again returns the stored one.
func (m *Manager) Issue(ctx context.Context, params IssueParams) (model.Certificate, error) {
	cert, err := m.issue(ctx, params)
	m.metrics.RecordCertificate("issue", err)
	return cert, err
}

func (m *Manager) issue(ctx context.Context, params IssueParams) (model.Certificate, error) {
	id := model.CertificateID(params.WorkshopID, params.UserID)
	existing, err := docstore.GetAs[model.Certificate](ctx, m.store, model.CollectionWorkshopCerts, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return existing, fmt.Errorf("failed to look up certificate: %w", err)
	}

	now := m.now().UTC()
	code, err := VerificationCode(now)
	if err != nil {
		return model.Certificate{}, err
	}
	cert := model.Certificate{
		ID:               id,
		WorkshopID:       params.WorkshopID,
		WorkshopTitle:    params.WorkshopTitle,
		UserID:           params.UserID,
		UserName:         params.UserName,
		CompletedAt:      params.CompletedAt.UTC(),
		IssuedAt:         now,
		VerificationCode: code,
	}

	artifact, err := m.renderer.Render(ctx, dataFor(cert, params.CreatorName, params.Duration))
	if err != nil {
		return model.Certificate{}, err
	}
	cert.CertificateURL = artifact.URL
	cert.StorageKey = artifact.Key

	err = m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Create(ctx, model.CollectionWorkshopCerts, cert.ID, cert); err != nil {
			return err
		}
		return link(ctx, tx, cert, now)
	})
	if err != nil {
		m.discard(ctx, artifact.Key)
	}
	if errors.Is(err, docstore.ErrAlreadyExists) {
		// Lost a race with a concurrent issue for the same pair.
		return docstore.GetAs[model.Certificate](ctx, m.store, model.CollectionWorkshopCerts, id)
	}
	if err != nil {
		return model.Certificate{}, fmt.Errorf("failed to store certificate: %w", err)
	}

	m.logger.Info("Certificate issued", "certificate_id", cert.ID, "user_id", cert.UserID, "code", cert.VerificationCode)
	return cert, nil
}

// link marks the matching enrollment as certified, if there is one.
func link(ctx context.Context, tx docstore.Tx, cert model.Certificate, now time.Time) error {
	eid := model.EnrollmentID(cert.WorkshopID, cert.UserID)
	e, err := docstore.GetAs[model.Enrollment](ctx, tx, model.CollectionWorkshopEnrollments, eid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	e.CertificateIssued = true
	e.CertificateID = cert.ID
	e.UpdatedAt = now
	return tx.Set(ctx, model.CollectionWorkshopEnrollments, e.ID, e)
}

func dataFor(cert model.Certificate, creatorName string, duration int) Data {
	return Data{
		CertificateID:    cert.ID,
		WorkshopID:       cert.WorkshopID,
		WorkshopTitle:    cert.WorkshopTitle,
		UserID:           cert.UserID,
		UserName:         cert.UserName,
		CreatorName:      creatorName,
		Duration:         duration,
		CompletedAt:      cert.CompletedAt,
		IssuedAt:         cert.IssuedAt,
		VerificationCode: cert.VerificationCode,
	}
}

// ForUser lists the user's certificates, newest first.
func (m *Manager) ForUser(ctx context.Context, userID string) ([]model.Certificate, error) {
	certs, err := docstore.QueryAs[model.Certificate](ctx, m.store, docstore.From(model.CollectionWorkshopCerts).
		Where("userId", docstore.OpEqual, userID).
		OrderBy("issuedAt", docstore.Desc))
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return certs, nil
}

func (m *Manager) Get(ctx context.Context, certificateID string) (model.Certificate, error) {
	cert, err := docstore.GetAs[model.Certificate](ctx, m.store, model.CollectionWorkshopCerts, certificateID)
	if errors.Is(err, docstore.ErrNotFound) {
		return cert, ErrCertificateNotFound
	}
	return cert, err
}

func (m *Manager) Verify(ctx context.Context, code string) (model.Certificate, error) {
	cert, found, err := docstore.FirstAs[model.Certificate](ctx, m.store, docstore.From(model.CollectionWorkshopCerts).
		Where("verificationCode", docstore.OpEqual, code))
	if err != nil {
		return cert, fmt.Errorf("failed to verify certificate: %w", err)
	}
	if !found {
		return cert, ErrCertificateNotFound
	}
	return cert, nil
}

// DownloadURL returns where the certificate can be fetched. When userID is
// set it must own the certificate.
func (m *Manager) DownloadURL(ctx context.Context, certificateID, userID string) (string, error) {
	cert, err := m.Get(ctx, certificateID)
	if err != nil {
		return "", err
	}
	if userID != "" && cert.UserID != userID {
		return "", ErrAccessDenied
	}
	if cert.CertificateURL == "" {
		return "", ErrNoURL
	}
	return cert.CertificateURL, nil
}

// Regenerate renders the certificate again with the same verification code.
// The owner and the workshop creator may do this.
func (m *Manager) Regenerate(ctx context.Context, certificateID, requesterID string) (model.Certificate, error) {
	cert, err := m.Get(ctx, certificateID)
	if err != nil {
		return cert, err
	}
	w, err := m.workshop(ctx, cert.WorkshopID)
	if err != nil && !errors.Is(err, ErrWorkshopNotFound) {
		return cert, err
	}
	if cert.UserID != requesterID && w.CreatorID != requesterID {
		return cert, ErrAccessDenied
	}
	cert, err = m.rerender(ctx, cert, w)
	m.metrics.RecordCertificate("regenerate", err)
	return cert, err
}

func (m *Manager) rerender(ctx context.Context, cert model.Certificate, w model.Workshop) (model.Certificate, error) {
	artifact, err := m.renderer.Render(ctx, dataFor(cert, w.CreatorName, w.Duration))
	if err != nil {
		return cert, err
	}

	var (
		result   model.Certificate
		previous string
	)
	err = m.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		current, err := docstore.GetAs[model.Certificate](ctx, tx, model.CollectionWorkshopCerts, cert.ID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return ErrCertificateNotFound
			}
			return err
		}
		previous = current.StorageKey
		now := m.now().UTC()
		current.CertificateURL = artifact.URL
		current.StorageKey = artifact.Key
		current.RegeneratedAt = &now
		current.RegenerationCount++
		result = current
		return tx.Set(ctx, model.CollectionWorkshopCerts, current.ID, current)
	})
	if err != nil {
		m.discard(ctx, artifact.Key)
		return result, err
	}
	if previous != artifact.Key {
		m.discard(ctx, previous)
	}
	return result, nil
}

// discard removes an artifact no certificate points at any more. Failures
// only leave a stray file behind.
func (m *Manager) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := m.renderer.Discard(ctx, key); err != nil {
		m.logger.Warn("Failed to discard certificate artifact", "storage_key", key, "error", err)
	}
}

type WorkshopBreakdown struct {
	WorkshopID         string `json:"workshopId"`
	WorkshopTitle      string `json:"workshopTitle"`
	CertificatesIssued int    `json:"certificatesIssued"`
	Completions        int    `json:"completions"`
	CompletionRate     string `json:"completionRate"`
}

type RecentCertificate struct {
	ID            string    `json:"id"`
	UserName      string    `json:"userName"`
	WorkshopTitle string    `json:"workshopTitle"`
	IssuedAt      time.Time `json:"issuedAt"`
}

type Analytics struct {
	TotalCertificates  int                 `json:"totalCertificates"`
	WorkshopBreakdown  []WorkshopBreakdown `json:"workshopBreakdown"`
	RecentCertificates []RecentCertificate `json:"recentCertificates"`
}

// Analytics summarises certificates across the workshops creatorID owns.
// CompletionRate is certificates per enrolled seat, as a percentage.
func (m *Manager) Analytics(ctx context.Context, creatorID string) (Analytics, error) {
	out := Analytics{WorkshopBreakdown: []WorkshopBreakdown{}, RecentCertificates: []RecentCertificate{}}

	workshops, err := docstore.QueryAs[model.Workshop](ctx, m.store, docstore.From(model.CollectionWorkshops).
		Where("creatorId", docstore.OpEqual, creatorID).
		OrderBy("createdAt", docstore.Desc))
	if err != nil {
		return out, fmt.Errorf("failed to list workshops: %w", err)
	}
	if len(workshops) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(workshops))
	for _, w := range workshops {
		ids = append(ids, w.ID)
	}
	certs, err := docstore.QueryAs[model.Certificate](ctx, m.store, docstore.From(model.CollectionWorkshopCerts).
		Where("workshopId", docstore.OpIn, ids).
		OrderBy("issuedAt", docstore.Desc))
	if err != nil {
		return out, fmt.Errorf("failed to list certificates: %w", err)
	}

	perWorkshop := make(map[string]int, len(workshops))
	for _, c := range certs {
		perWorkshop[c.WorkshopID]++
	}
	for _, w := range workshops {
		issued := perWorkshop[w.ID]
		rate := "0"
		if w.EnrolledCount > 0 {
			rate = strconv.FormatFloat(float64(issued)/float64(w.EnrolledCount)*100, 'f', 1, 64)
		}
		out.WorkshopBreakdown = append(out.WorkshopBreakdown, WorkshopBreakdown{
			WorkshopID:         w.ID,
			WorkshopTitle:      w.Title,
			CertificatesIssued: issued,
			Completions:        w.CompletedCount,
			CompletionRate:     rate,
		})
	}

	out.TotalCertificates = len(certs)
	for _, c := range certs[:min(10, len(certs))] {
		out.RecentCertificates = append(out.RecentCertificates, RecentCertificate{
			ID:            c.ID,
			UserName:      c.UserName,
			WorkshopTitle: c.WorkshopTitle,
			IssuedAt:      c.IssuedAt,
		})
	}
	return out, nil
}

type BulkResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Issued     int `json:"issued"`
}

// BulkRegenerate re-renders every certificate of a workshop and issues the
// ones completed enrollments are still missing. Failures are counted, not fatal.
func (m *Manager) BulkRegenerate(ctx context.Context, workshopID, requesterID string) (BulkResult, error) {
	var result BulkResult
	w, err := m.workshop(ctx, workshopID)
	if err != nil {
		return result, err
	}
	if w.CreatorID != requesterID {
		return result, ErrNotCreator
	}

	certs, err := docstore.QueryAs[model.Certificate](ctx, m.store, docstore.From(model.CollectionWorkshopCerts).
		Where("workshopId", docstore.OpEqual, workshopID))
	if err != nil {
		return result, fmt.Errorf("failed to list certificates: %w", err)
	}
	completed, err := docstore.QueryAs[model.Enrollment](ctx, m.store, docstore.From(model.CollectionWorkshopEnrollments).
		Where("workshopId", docstore.OpEqual, workshopID).
		Where("status", docstore.OpEqual, string(model.EnrollmentCompleted)))
	if err != nil {
		return result, fmt.Errorf("failed to list completed enrollments: %w", err)
	}

	for _, c := range certs {
		result.Total++
		if _, err := m.rerender(ctx, c, w); err != nil {
			m.logger.Warn("Failed to regenerate certificate", "certificate_id", c.ID, "error", err)
			result.Failed++
			continue
		}
		result.Successful++
	}

	for _, e := range completed {
		if slices.ContainsFunc(certs, func(c model.Certificate) bool { return c.UserID == e.UserID }) {
			continue
		}
		result.Total++
		completedAt := e.UpdatedAt
		if e.CompletedAt != nil {
			completedAt = *e.CompletedAt
		}
		_, err := m.Issue(ctx, IssueParams{
			WorkshopID:    w.ID,
			WorkshopTitle: w.Title,
			UserID:        e.UserID,
			UserName:      e.UserName,
			CreatorName:   w.CreatorName,
			Duration:      w.Duration,
			CompletedAt:   completedAt,
		})
		if err != nil {
			m.logger.Warn("Failed to issue missing certificate", "workshop_id", w.ID, "user_id", e.UserID, "error", err)
			result.Failed++
			continue
		}
		result.Successful++
		result.Issued++
	}

	m.logger.Info("Bulk certificate regeneration finished", "workshop_id", workshopID,
		"total", result.Total, "failed", result.Failed, "issued", result.Issued)
	return result, nil
}

func (m *Manager) workshop(ctx context.Context, workshopID string) (model.Workshop, error) {
	w, err := docstore.GetAs[model.Workshop](ctx, m.store, model.CollectionWorkshops, workshopID)
	if errors.Is(err, docstore.ErrNotFound) {
		return w, ErrWorkshopNotFound
	}
	return w, err
}
