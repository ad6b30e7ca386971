package workflow

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/db"
	"github.com/erazemk/kataster/internal/docstore"
	"github.com/erazemk/kataster/internal/metrics"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/store"
)

type env struct {
	db       *sql.DB
	docs     *docstore.Memory
	metrics  *metrics.Metrics
	tr       *Transfers
	vs       *Verifications
	seller   model.Caller
	buyer    model.Caller
	verifier model.Caller
	admin    model.Caller
	outsider model.Caller
	property *model.Property
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, DefaultConfig())
}

func newEnvWith(t *testing.T, cfg Config) *env {
	t.Helper()
	require.NoError(t, cfg.Validate())

	database := db.NewTestDB(t)
	docs := docstore.NewMemory()
	m := metrics.New()

	e := &env{
		db:      database,
		docs:    docs,
		metrics: m,
		tr:      NewTransfers(database, docs, m, cfg.RequiredApprovals),
		vs:      NewVerifications(database, docs, m, cfg.InitialVerificationStatus),
	}
	e.seller = e.user(t, "seller", model.RoleUser)
	e.buyer = e.user(t, "buyer", model.RoleUser)
	e.verifier = e.user(t, "verifier", model.RoleVerifier)
	e.admin = e.user(t, "admin", model.RoleAdmin)
	e.outsider = e.user(t, "outsider", model.RoleUser)
	e.property = e.newProperty(t, e.seller.ID)
	return e
}

func (e *env) user(t *testing.T, name, role string) model.Caller {
	t.Helper()
	u, err := store.CreateUser(context.Background(), e.db, name, "hash", role)
	require.NoError(t, err)
	return model.Caller{ID: u.ID, Role: u.Role}
}

func (e *env) newProperty(t *testing.T, ownerID int64) *model.Property {
	t.Helper()
	now := time.Now().UTC()
	p := &model.Property{
		ID:                 uuid.NewString(),
		Title:              "Plot 12",
		Type:               model.PropertyTypeResidential,
		Size:               600,
		Location:           model.Location{Address: "12 Hill Road", Area: "Kololo", City: "Kampala"},
		OwnerID:            ownerID,
		Price:              250000,
		Status:             model.PropertyStatusAvailable,
		VerificationStatus: model.VerificationStatusUnverified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, store.CreateProperty(context.Background(), e.db, p))
	return p
}

func (e *env) reloadProperty(t *testing.T) *model.Property {
	t.Helper()
	p, err := store.GetProperty(context.Background(), e.db, e.property.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (e *env) history(t *testing.T) []model.HistoryEntry {
	t.Helper()
	entries, err := store.ListPropertyHistory(context.Background(), e.db, e.property.ID, 0, 0)
	require.NoError(t, err)
	return entries
}

func countActions(entries []model.HistoryEntry, action string) int {
	n := 0
	for _, h := range entries {
		if h.Action == action {
			n++
		}
	}
	return n
}

func (e *env) initiateInput() InitiateInput {
	amount := 250000.0
	return InitiateInput{
		PropertyID: e.property.ID,
		ToOwnerID:  e.buyer.ID,
		ToOwnerDetails: model.RecipientDetails{
			Name:           "Jane Buyer",
			Identification: "CF1234567",
			Contact:        "+256701000000",
		},
		TransferReason: "sale",
		AgreementDate:  time.Now().UTC(),
		TransferAmount: &amount,
	}
}

func (e *env) initiate(t *testing.T) *model.Transfer {
	t.Helper()
	tr, err := e.tr.Initiate(context.Background(), e.seller, e.initiateInput(), nil)
	require.NoError(t, err)
	return tr
}

func file(name, body string) docstore.File {
	return docstore.File{Name: name, Body: strings.NewReader(body)}
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}
