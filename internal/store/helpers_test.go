package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/kataster/internal/model"
)

func mustUser(t *testing.T, database DBTX, username, role string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, username, "hash", role)
	require.NoError(t, err)
	return u
}

func mustProperty(t *testing.T, database DBTX, ownerID int64) *model.Property {
	t.Helper()
	now := time.Now().UTC()
	p := &model.Property{
		ID:          uuid.NewString(),
		Title:       "Plot 7",
		Description: "Corner plot",
		Type:        model.PropertyTypeResidential,
		Size:        450,
		Location: model.Location{
			Address:     "7 Lake Road",
			Area:        "Ntinda",
			City:        "Kampala",
			Coordinates: &model.Coordinates{Lat: 0.35, Lng: 32.61},
		},
		OwnerID:            ownerID,
		Price:              100000,
		Status:             model.PropertyStatusAvailable,
		VerificationStatus: model.VerificationStatusUnverified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, CreateProperty(context.Background(), database, p))
	return p
}

func newTransfer(propertyID string, from, to int64) *model.Transfer {
	now := time.Now().UTC()
	amount := 100000.0
	return &model.Transfer{
		ID:          uuid.NewString(),
		PropertyID:  propertyID,
		FromOwnerID: from,
		ToOwnerID:   to,
		ToOwnerDetails: model.RecipientDetails{
			Name:           "Buyer",
			Identification: "CM900",
			Contact:        "+256700000000",
		},
		Status:         model.TransferStatusPending,
		TransferReason: "sale",
		AgreementDate:  now,
		TransferAmount: &amount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func countRows(t *testing.T, database *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, database.QueryRow(query, args...).Scan(&n))
	return n
}
