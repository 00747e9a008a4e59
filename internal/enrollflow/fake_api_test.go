package enrollflow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/enrollclient"
)

// fakeAPI serves the two enrollment endpoints the form consumes.
type fakeAPI struct {
	mu          sync.Mutex
	records     []models.EnrollmentRecord
	resynced    []models.EnrollmentRecord
	listStatus  int
	listCalls   int
	createCalls int
	createCode  int
	createBody  string
	createHold  chan struct{}
	created     chan struct{}
	submitted   map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/enrollments/me":
		f.mu.Lock()
		f.listCalls++
		status, records := f.listStatus, f.records
		if f.createCalls > 0 && f.resynced != nil {
			records = f.resynced
		}
		f.mu.Unlock()
		if status != 0 {
			http.Error(w, "Service Unavailable", status)
			return
		}
		writeEnvelope(w, http.StatusOK, records)
	case r.Method == http.MethodPost && r.URL.Path == "/enrollments":
		f.mu.Lock()
		f.createCalls++
		hold, created := f.createHold, f.created
		code, body := f.createCode, f.createBody
		f.mu.Unlock()
		if created != nil {
			created <- struct{}{}
		}
		if hold != nil {
			<-hold
		}
		if code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body))
			return
		}
		if err := r.ParseMultipartForm(MaxProofBytes + 1<<20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		values := make(map[string]string, len(r.MultipartForm.Value))
		for k := range r.MultipartForm.Value {
			values[k] = r.FormValue(k)
		}
		f.mu.Lock()
		f.submitted = values
		f.mu.Unlock()
		writeEnvelope(w, http.StatusCreated, models.EnrollmentRecord{
			ID:       "enr-1",
			CourseID: r.FormValue("course_id"),
			UserID:   r.FormValue("user_id"),
			Status:   models.EnrollmentStatus(r.FormValue("status")),
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) counts() (list, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.createCalls
}

func (f *fakeAPI) lastSubmission() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

type recordingNavigator struct {
	mu        sync.Mutex
	logins    int
	navigated []*models.EnrollmentRecord
}

func (n *recordingNavigator) ToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logins++
}

func (n *recordingNavigator) ToEnrollment(record *models.EnrollmentRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navigated = append(n.navigated, record)
}

func testPayments() config.PaymentsConfig {
	return config.PaymentsConfig{
		Currency:          "PKR",
		JazzCashNumber:    "0300-1234567",
		JazzCashTitle:     "Course Academy",
		EasypaisaNumber:   "0345-7654321",
		EasypaisaTitle:    "Course Academy",
		BankName:          "Meezan Bank",
		BankAccountTitle:  "Course Academy Pvt Ltd",
		BankIBAN:          "PK36MEZN0001230104567890",
		CardMerchantID:    "CA-POS-0042",
		CardMerchantLabel: "COURSE ACADEMY",
	}
}

var (
	testIdentity = &models.UserInfo{ID: "7", Name: "Ayesha Khan", Email: "ayesha@example.com", Phone: "03001234567"}
	testCourse   = &models.Course{ID: "42", Title: "Go Services", Instructor: "N. Isme", Price: 2500, Currency: "PKR"}
)

func newTestForm(t *testing.T, api *fakeAPI) (*Form, *recordingNavigator) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	nav := &recordingNavigator{}
	client := enrollclient.New(srv.URL, "token", 2*time.Second)
	return NewForm(client, NewPaymentMethodSelector(testPayments()), nav, nil), nav
}
