package enrollflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

func readyForm(t *testing.T, form *Form) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, form.SetIdentity(ctx, testIdentity))
	require.NoError(t, form.SetCourse(ctx, testCourse))
	form.SelectMethod(models.PaymentMethodJazzCash)
	form.SetField("sender_account", "0300-7654321")
	form.SetField("transaction_id", "TX998877")
	require.NoError(t, form.Proof().Stage("receipt.png", "image/png", bytes.Repeat([]byte{0xAB}, 2*1024*1024)))
}

func TestFormScenarioSubmitSucceeds(t *testing.T) {
	api := &fakeAPI{}
	form, nav := newTestForm(t, api)
	readyForm(t, form)
	assert.True(t, form.View().SubmitEnabled)

	outcome, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome.Kind)
	assert.Equal(t, StatusPending, outcome.View.Status)
	assert.False(t, outcome.View.SubmitEnabled)
	assert.Equal(t, StateSucceeded, form.State())
	require.Len(t, nav.navigated, 1)
	assert.Equal(t, "enr-1", nav.navigated[0].ID)

	list, create := api.counts()
	assert.Equal(t, 1, list)
	assert.Equal(t, 1, create)
	assert.False(t, form.Proof().Staged())
}

func TestFormScenarioRejectedRecordBlocksWithoutNetwork(t *testing.T) {
	api := &fakeAPI{records: []models.EnrollmentRecord{{ID: "old", CourseID: "42", UserID: "7", Status: models.EnrollmentStatusRejected}}}
	form, _ := newTestForm(t, api)
	readyForm(t, form)

	view := form.View()
	assert.Equal(t, StatusRejected, view.Status)
	assert.True(t, view.Blocked)
	assert.True(t, view.PolicyBlock)
	assert.False(t, view.SubmitEnabled)
	assert.Contains(t, view.Message, "policy block")

	before, _ := api.counts()
	outcome, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, outcome.Kind)

	after, create := api.counts()
	assert.Equal(t, before, after)
	assert.Zero(t, create)
}

func TestFormScenarioDuplicateEntryResyncsToPending(t *testing.T) {
	api := &fakeAPI{
		createCode: http.StatusInternalServerError,
		createBody: `{"error":{"code":"INTERNAL_ERROR","message":"Duplicate entry '7-42' for key users_courses_unique","status":500}}`,
		resynced:   []models.EnrollmentRecord{{ID: "enr-7", CourseID: "42", UserID: "7", Status: models.EnrollmentStatusPending}},
	}
	form, nav := newTestForm(t, api)
	readyForm(t, form)

	outcome, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateResolved, outcome.Kind)
	assert.Equal(t, StatusPending, outcome.View.Status)
	assert.False(t, outcome.View.SubmitEnabled)
	assert.NotContains(t, outcome.Message, "Duplicate entry")
	assert.Equal(t, pendingMessage, outcome.Message)
	assert.Equal(t, StateIdle, form.State())

	var conflict *ConflictError
	assert.True(t, errors.As(outcome.Err, &conflict))
	assert.Empty(t, nav.navigated)

	list, create := api.counts()
	assert.Equal(t, 2, list)
	assert.Equal(t, 1, create)
}

func TestFormDuplicateCodeResyncsExactlyOnce(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		resynced   []models.EnrollmentRecord
		listStatus int
		want       OutcomeKind
	}{
		{
			name:     "1062 with record",
			body:     `Error 1062: duplicate key`,
			resynced: []models.EnrollmentRecord{{ID: "enr-7", CourseID: "42", UserID: "7", Status: models.EnrollmentStatusApproved}},
			want:     OutcomeDuplicateResolved,
		},
		{
			name:     "1062 without record",
			body:     `Error 1062: duplicate key`,
			resynced: []models.EnrollmentRecord{},
			want:     OutcomeFailed,
		},
		{
			name:       "1062 with failing resync",
			body:       `Error 1062: duplicate key`,
			listStatus: http.StatusServiceUnavailable,
			want:       OutcomeFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{createCode: http.StatusBadRequest, createBody: tc.body, resynced: tc.resynced}
			form, _ := newTestForm(t, api)
			readyForm(t, form)
			api.mu.Lock()
			api.listStatus = tc.listStatus
			api.mu.Unlock()

			outcome, err := form.Submit(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome.Kind)

			list, create := api.counts()
			assert.Equal(t, 2, list, "initial probe plus one resync")
			assert.Equal(t, 1, create)
			if tc.want == OutcomeFailed {
				assert.Equal(t, genericFailureMessage, outcome.Message)
				assert.Equal(t, StateFailed, form.State())
				assert.True(t, form.View().SubmitEnabled)
			}
		})
	}
}

func TestFormTypedConflictCodeIsDuplicate(t *testing.T) {
	api := &fakeAPI{
		createCode: http.StatusConflict,
		createBody: `{"error":{"code":"ENROLLMENT_DUPLICATE","message":"conflict","status":409}}`,
		resynced:   []models.EnrollmentRecord{{ID: "enr-7", CourseID: "42", UserID: "7", Status: models.EnrollmentStatusPending}},
	}
	form, _ := newTestForm(t, api)
	readyForm(t, form)

	outcome, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateResolved, outcome.Kind)
}

func TestFormScenarioServerErrorIsRetryable(t *testing.T) {
	api := &fakeAPI{createCode: http.StatusInternalServerError, createBody: "Internal Server Error"}
	form, nav := newTestForm(t, api)
	readyForm(t, form)

	outcome, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "Internal Server Error", outcome.Message)
	assert.Equal(t, StateFailed, form.State())
	assert.True(t, outcome.View.SubmitEnabled)
	assert.Empty(t, nav.navigated)

	list, create := api.counts()
	assert.Equal(t, 1, list, "no resync for non-duplicate failures")
	assert.Equal(t, 1, create)

	draft := form.Draft()
	assert.Equal(t, models.PaymentMethodJazzCash, draft.Method)
	assert.Equal(t, "TX998877", draft.Fields["transaction_id"])
	assert.True(t, form.Proof().Staged())

	api.mu.Lock()
	api.createCode = 0
	api.mu.Unlock()
	outcome, err = form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome.Kind)
}

func TestFormRejectsConcurrentSubmit(t *testing.T) {
	api := &fakeAPI{createHold: make(chan struct{}), created: make(chan struct{}, 1)}
	form, _ := newTestForm(t, api)
	readyForm(t, form)

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := form.Submit(context.Background())
		done <- outcome
	}()

	select {
	case <-api.created:
	case <-time.After(time.Second):
		t.Fatal("create call never arrived")
	}
	assert.False(t, form.View().SubmitEnabled)

	_, err := form.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(api.createHold)
	outcome := <-done
	assert.Equal(t, OutcomeSubmitted, outcome.Kind)
	_, create := api.counts()
	assert.Equal(t, 1, create)
}

func TestFormPreconditions(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		api := &fakeAPI{}
		form, nav := newTestForm(t, api)
		require.NoError(t, form.SetCourse(context.Background(), testCourse))

		outcome, err := form.Submit(context.Background())
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Equal(t, OutcomeLoginRequired, outcome.Kind)
		assert.Equal(t, 1, nav.logins)
		list, create := api.counts()
		assert.Zero(t, list)
		assert.Zero(t, create)
	})

	t.Run("course not loaded", func(t *testing.T) {
		api := &fakeAPI{}
		form, _ := newTestForm(t, api)
		require.NoError(t, form.SetIdentity(context.Background(), testIdentity))

		_, err := form.Submit(context.Background())
		assert.ErrorIs(t, err, ErrCourseNotLoaded)
	})

	t.Run("proof required", func(t *testing.T) {
		api := &fakeAPI{}
		form, _ := newTestForm(t, api)
		readyForm(t, form)
		form.Proof().Remove()

		assert.False(t, form.View().SubmitEnabled)
		_, err := form.Submit(context.Background())
		var input *UserInputError
		require.True(t, errors.As(err, &input))
		assert.ErrorIs(t, err, ErrProofRequired)
		_, create := api.counts()
		assert.Zero(t, create)
	})

	t.Run("payment details", func(t *testing.T) {
		api := &fakeAPI{}
		form, _ := newTestForm(t, api)
		readyForm(t, form)
		form.SetField("transaction_id", "")

		_, err := form.Submit(context.Background())
		var input *UserInputError
		require.True(t, errors.As(err, &input))
		assert.ErrorIs(t, err, ErrPaymentDetails)
		assert.Contains(t, input.Fields, "transaction_id")
		assert.Contains(t, form.FieldErrors(), "transaction_id")
		_, create := api.counts()
		assert.Zero(t, create)
	})
}

func TestFormSelectMethodClearsOtherMethodErrors(t *testing.T) {
	api := &fakeAPI{}
	form, _ := newTestForm(t, api)
	readyForm(t, form)
	form.SelectMethod(models.PaymentMethodCard)

	_, err := form.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, form.FieldErrors(), "card_last4")

	form.SelectMethod(models.PaymentMethodBank)
	assert.Empty(t, form.FieldErrors(), "card and bank share transaction_reference")
	assert.Contains(t, form.Instructions(), "PK36MEZN0001230104567890")

	form.SelectMethod("")
	assert.Empty(t, form.Instructions())
}

func TestFormSwitchingMethodDiscardsPreviousValues(t *testing.T) {
	api := &fakeAPI{}
	form, _ := newTestForm(t, api)
	readyForm(t, form)

	form.SelectMethod(models.PaymentMethodEasypaisa)
	draft := form.Draft()
	assert.Empty(t, draft.Fields)

	artifact, ok := form.Proof().Artifact()
	require.True(t, ok)
	sub := form.submitter.Build(*testIdentity, *testCourse, draft, artifact)
	assert.Equal(t, models.PaymentDetails{"method": "easypaisa"}, sub.PaymentDetails)

	_, err := form.Submit(context.Background())
	var input *UserInputError
	require.True(t, errors.As(err, &input))
	assert.Contains(t, input.Fields, "sender_account")
	assert.Contains(t, input.Fields, "transaction_id")
	_, create := api.counts()
	assert.Zero(t, create)

	form.SetField("sender_account", "0345-1112223")
	form.SetField("transaction_id", "EP445566")
	outcome, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome.Kind)

	var details map[string]string
	require.NoError(t, json.Unmarshal([]byte(api.lastSubmission()["payment_details"]), &details))
	assert.Equal(t, map[string]string{
		"method":         "easypaisa",
		"sender_account": "0345-1112223",
		"transaction_id": "EP445566",
	}, details)
}

func TestFormSetFieldIgnoresKeysOfOtherMethods(t *testing.T) {
	api := &fakeAPI{}
	form, _ := newTestForm(t, api)
	readyForm(t, form)

	form.SetField("card_last4", "1234")
	form.SetField("bank_name", "HBL")
	assert.Equal(t, map[string]string{"sender_account": "0300-7654321", "transaction_id": "TX998877"}, form.Draft().Fields)
}

func TestFormSubmitSendsCoursePriceAndSelectedFields(t *testing.T) {
	api := &fakeAPI{}
	form, _ := newTestForm(t, api)
	readyForm(t, form)

	_, err := form.Submit(context.Background())
	require.NoError(t, err)

	sent := api.lastSubmission()
	require.NotNil(t, sent)
	assert.Equal(t, "2500", sent["amount"])
	assert.Equal(t, "pending", sent["status"])
	assert.Equal(t, "jazzcash", sent["payment_method"])
	assert.Equal(t, "42", sent["course_id"])
	assert.Equal(t, "7", sent["user_id"])
	assert.Equal(t, "Ayesha Khan", sent["name"])

	var details map[string]string
	require.NoError(t, json.Unmarshal([]byte(sent["payment_details"]), &details))
	assert.Equal(t, map[string]string{
		"method":         "jazzcash",
		"sender_account": "0300-7654321",
		"transaction_id": "TX998877",
	}, details)
}

func TestFormProbeIsIdempotent(t *testing.T) {
	api := &fakeAPI{records: []models.EnrollmentRecord{
		{ID: "a", CourseID: "9", UserID: "7", Status: models.EnrollmentStatusApproved},
		{ID: "b", CourseID: "42", UserID: "7", Status: models.EnrollmentStatusPending},
	}}
	form, _ := newTestForm(t, api)
	readyForm(t, form)

	first := form.View()
	require.NoError(t, form.Refresh(context.Background()))
	second := form.View()
	assert.Equal(t, first, second)
	assert.Equal(t, StatusPending, second.Status)

	list, _ := api.counts()
	assert.Equal(t, 2, list)
}

func TestFormProbeFailureKeepsGate(t *testing.T) {
	api := &fakeAPI{records: []models.EnrollmentRecord{{ID: "b", CourseID: "42", UserID: "7", Status: models.EnrollmentStatusApproved}}}
	form, _ := newTestForm(t, api)
	readyForm(t, form)
	require.Equal(t, StatusApproved, form.Status())

	api.mu.Lock()
	api.listStatus = http.StatusBadGateway
	api.mu.Unlock()

	err := form.Refresh(context.Background())
	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, StatusApproved, form.Status())
}
