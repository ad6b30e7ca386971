package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/docstore"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/store"
)

func (e *env) submitInput(ls string) SubmitInput {
	return SubmitInput{
		PropertyID:   e.property.ID,
		VerifierID:   e.verifier.ID,
		LSNumber:     ls,
		PageNumber:   "14",
		VolumeNumber: "3",
		LawyerID:     "LAW-77",
	}
}

func TestSubmitVerification(t *testing.T) {
	e := newEnv(t)

	v, err := e.vs.Submit(context.Background(), e.seller, e.submitInput("LS1234/2024"), []docstore.File{
		{Name: "survey.pdf", Type: model.DocTypeSurvey, Body: strings.NewReader("%PDF")},
		{Name: "misc.pdf", Type: model.DocTypeTransferDeed, Body: strings.NewReader("%PDF")},
	})
	require.NoError(t, err)

	assert.Equal(t, model.VerificationPending, v.Status)
	assert.Equal(t, e.seller.ID, v.SubmittedBy)
	require.Len(t, v.Documents, 2)
	assert.Equal(t, model.DocTypeSurvey, v.Documents[0].Type)
	assert.Equal(t, model.DocTypeOther, v.Documents[1].Type)
	require.Len(t, v.History, 1)
	assert.Equal(t, model.ActionCreated, v.History[0].Action)

	assert.Equal(t, model.VerificationStatusPending, e.reloadProperty(t).VerificationStatus)
	assert.Equal(t, 1, countActions(e.history(t), model.ActionVerificationSubmitted))
}

func TestSubmitVerificationErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS12/2024"), nil)
	requireKind(t, err, apperr.KindValidation)

	_, err = e.vs.Submit(ctx, e.outsider, e.submitInput("LS1234/2024"), nil)
	requireKind(t, err, apperr.KindForbidden)

	in := e.submitInput("LS1234/2024")
	in.VerifierID = e.buyer.ID
	_, err = e.vs.Submit(ctx, e.seller, in, nil)
	requireKind(t, err, apperr.KindValidation)

	in.VerifierID = 4242
	_, err = e.vs.Submit(ctx, e.seller, in, nil)
	requireKind(t, err, apperr.KindNotFound)

	in = e.submitInput("LS1234/2024")
	in.Comments = strings.Repeat("x", model.MaxCommentsLength+1)
	_, err = e.vs.Submit(ctx, e.seller, in, nil)
	requireKind(t, err, apperr.KindValidation)

	assert.Equal(t, model.VerificationStatusUnverified, e.reloadProperty(t).VerificationStatus)
}

func TestSubmitDuplicateLSNumber(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS0001/2024"), nil)
	require.NoError(t, err)

	other := e.newProperty(t, e.seller.ID)
	in := e.submitInput("LS0001/2024")
	in.PropertyID = other.ID
	_, err = e.vs.Submit(ctx, e.seller, in, []docstore.File{{Name: "a.pdf", Body: strings.NewReader("%PDF")}})
	requireKind(t, err, apperr.KindConflict)
}

func TestSubmitWhilePendingConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS0001/2024"), nil)
	require.NoError(t, err)

	_, err = e.vs.Submit(ctx, e.seller, e.submitInput("LS0002/2024"), nil)
	requireKind(t, err, apperr.KindConflict)
	_, err = e.vs.Submit(ctx, e.admin, e.submitInput("LS0002/2024"), nil)
	requireKind(t, err, apperr.KindConflict)

	// Once the first is decided a new request goes through, and the
	// property follows the newest decision.
	_, err = e.vs.Approve(ctx, e.verifier, first.ID, DecisionInput{Status: model.VerificationRejected}, nil)
	require.NoError(t, err)
	second, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS0002/2024"), nil)
	require.NoError(t, err)
	_, err = e.vs.Approve(ctx, e.verifier, second.ID, DecisionInput{Status: model.VerificationVerified}, nil)
	require.NoError(t, err)

	st, err := e.vs.CheckStatus(ctx, e.seller, e.property.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, st.Verification.ID)
	assert.Equal(t, model.VerificationVerified, st.Verification.Status)
	assert.Equal(t, model.VerificationStatusVerified, st.VerificationStatus)
	assert.Equal(t, model.VerificationStatusVerified, e.reloadProperty(t).VerificationStatus)
}

func TestApproveVerification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	v, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS2000/2024"), nil)
	require.NoError(t, err)

	_, err = e.vs.Approve(ctx, e.outsider, v.ID, DecisionInput{Status: "approved"}, nil)
	requireKind(t, err, apperr.KindForbidden)

	_, err = e.vs.Approve(ctx, e.verifier, v.ID, DecisionInput{Status: "maybe"}, nil)
	requireKind(t, err, apperr.KindValidation)

	sig := docstore.File{Name: "sig.pdf", Body: strings.NewReader("%PDF signed")}
	got, err := e.vs.Approve(ctx, e.verifier, v.ID, DecisionInput{
		Status:       "approved",
		Comments:     "all in order",
		SurveyValid:  &CheckUpdate{Status: true, Notes: "matches survey map"},
		TitleValid:   &CheckUpdate{Status: true},
		TaxClearance: &CheckUpdate{Status: true},
	}, &sig)
	require.NoError(t, err)

	assert.Equal(t, model.VerificationVerified, got.Status)
	assert.True(t, got.Checks.Complete())
	assert.Equal(t, "matches survey map", got.Checks.SurveyValid.Notes)
	assert.NotNil(t, got.Checks.TitleValid.VerifiedAt)
	assert.NotNil(t, got.VerificationDate)
	require.NotNil(t, got.Signature)
	assert.Contains(t, got.Signature.URL, docstore.FolderSignatures)
	require.Len(t, got.History, 2)
	assert.Equal(t, model.ActionApproved, got.History[1].Action)

	p := e.reloadProperty(t)
	assert.Equal(t, model.VerificationStatusVerified, p.VerificationStatus)
	assert.Equal(t, 1, countActions(e.history(t), model.ActionVerificationCompleted))

	// Same decision again is a no-op.
	again, err := e.vs.Approve(ctx, e.verifier, v.ID, DecisionInput{Status: model.VerificationVerified}, nil)
	require.NoError(t, err)
	assert.Len(t, again.History, 2)
	assert.Equal(t, 1, countActions(e.history(t), model.ActionVerificationCompleted))

	_, err = e.vs.Approve(ctx, e.verifier, v.ID, DecisionInput{Status: model.VerificationRejected}, nil)
	requireKind(t, err, apperr.KindInvalidState)
}

func TestRejectVerification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	v, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS3000/2024"), nil)
	require.NoError(t, err)

	got, err := e.vs.Approve(ctx, e.admin, v.ID, DecisionInput{
		Status:      model.VerificationRejected,
		Comments:    "survey does not match",
		SurveyValid: &CheckUpdate{Status: false, Notes: "boundary mismatch"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationRejected, got.Status)
	assert.Nil(t, got.Checks.SurveyValid.VerifiedAt)
	assert.Equal(t, model.VerificationStatusUnverified, e.reloadProperty(t).VerificationStatus)
}

func TestCheckVerificationStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.vs.CheckStatus(ctx, e.seller, e.property.ID)
	requireKind(t, err, apperr.KindNotFound)

	_, err = e.vs.CheckStatus(ctx, e.seller, "missing")
	requireKind(t, err, apperr.KindNotFound)

	first, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS4000/2024"), nil)
	require.NoError(t, err)
	_, err = e.vs.Approve(ctx, e.verifier, first.ID, DecisionInput{Status: model.VerificationRejected}, nil)
	require.NoError(t, err)
	second, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS4001/2024"), nil)
	require.NoError(t, err)

	st, err := e.vs.CheckStatus(ctx, e.seller, e.property.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationStatusPending, st.VerificationStatus)
	assert.Equal(t, second.ID, st.Verification.ID)

	_, err = e.vs.CheckStatus(ctx, e.outsider, e.property.ID)
	requireKind(t, err, apperr.KindForbidden)
	_, err = e.vs.CheckStatus(ctx, e.verifier, e.property.ID)
	assert.NoError(t, err)
}

func TestGetVerificationVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	v, err := e.vs.Submit(ctx, e.seller, e.submitInput("LS5000/2024"), nil)
	require.NoError(t, err)

	for _, c := range []model.Caller{e.seller, e.verifier, e.admin} {
		_, err := e.vs.Get(ctx, c, v.ID)
		assert.NoError(t, err)
	}
	_, err = e.vs.Get(ctx, e.outsider, v.ID)
	requireKind(t, err, apperr.KindForbidden)
	_, err = e.vs.Get(ctx, e.seller, "missing")
	requireKind(t, err, apperr.KindNotFound)
}

func TestAutoVerifyConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialVerificationStatus = model.VerificationVerified
	e := newEnvWith(t, cfg)

	v, err := e.vs.Submit(context.Background(), e.seller, e.submitInput("LS6000/2024"), nil)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationVerified, v.Status)
	assert.True(t, v.Checks.Complete())

	assert.Equal(t, model.VerificationStatusVerified, e.reloadProperty(t).VerificationStatus)
	history := e.history(t)
	assert.Equal(t, 1, countActions(history, model.ActionVerificationSubmitted))
	assert.Equal(t, 1, countActions(history, model.ActionVerificationCompleted))

	counts, err := store.CountVerificationsByStatus(context.Background(), e.db, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.VerificationVerified])
}
