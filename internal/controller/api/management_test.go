package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carelink/emr-connector/internal/accesswindow"
	"github.com/carelink/emr-connector/internal/config"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/middlewares"
	"github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/records"
	"github.com/carelink/emr-connector/internal/sync"

	"github.com/gorilla/mux"
)

const (
	TEST_URL_BASE_PATH = "/api/emr-connector/v1"
	SYNC_ENDPOINT      = TEST_URL_BASE_PATH + "/sync"
	STATUS_ENDPOINT    = TEST_URL_BASE_PATH + "/status"
	EDIT_INFO_ENDPOINT = TEST_URL_BASE_PATH + "/records/edit-info"
	AUTHORIZED_CLIENT  = "record_service"
	AUTHORIZED_PSK     = "s3cr3t"
)

func init() {
	logger.InitLogger()
}

type mockSyncService struct {
	lastHospitalID domain.HospitalID
	result         sync.SyncResult
	status         sync.Status
}

func (m *mockSyncService) SyncNow(hospitalID domain.HospitalID) sync.SyncResult {
	m.lastHospitalID = hospitalID
	return m.result
}

func (m *mockSyncService) Status() sync.Status {
	return m.status
}

type mockRecordStore struct {
	recordsByRef  map[string]*domain.SyncedRecord
	updatedStatus map[string]domain.MedicationStatus
}

func newMockRecordStore() *mockRecordStore {
	return &mockRecordStore{
		recordsByRef:  make(map[string]*domain.SyncedRecord),
		updatedStatus: make(map[string]domain.MedicationStatus),
	}
}

func (m *mockRecordStore) FindByRef(ctx context.Context, ref string) (*domain.SyncedRecord, error) {
	if record, ok := m.recordsByRef[ref]; ok {
		return record, nil
	}
	return nil, records.ErrNotFound
}

func (m *mockRecordStore) FindBySourceObsID(ctx context.Context, hospitalID domain.HospitalID, sourceObsID int64) (*domain.SyncedRecord, error) {
	return nil, records.ErrNotFound
}

func (m *mockRecordStore) FindByNaturalKey(ctx context.Context, patientRef string, recordType domain.RecordType, name string, recordDate time.Time) (*domain.SyncedRecord, error) {
	return nil, records.ErrNotFound
}

func (m *mockRecordStore) Create(ctx context.Context, record *domain.SyncedRecord) error {
	m.recordsByRef[record.Ref] = record
	return nil
}

func (m *mockRecordStore) UpdateMedicationStatus(ctx context.Context, ref string, status domain.MedicationStatus) error {
	m.updatedStatus[ref] = status
	return nil
}

func createEditInfoPostBody(recordRef string, actorRef string) io.Reader {
	jsonString := fmt.Sprintf("{\"record_ref\": \"%s\", \"actor_ref\": \"%s\"}", recordRef, actorRef)
	return strings.NewReader(jsonString)
}

func addAuthHeaders(req *http.Request) {
	req.Header.Add(middlewares.PSKClientIdHeader, AUTHORIZED_CLIENT)
	req.Header.Add(middlewares.PSKHeader, AUTHORIZED_PSK)
}

var _ = Describe("Management", func() {

	var (
		ms          *ManagementServer
		syncService *mockSyncService
		recordStore *mockRecordStore
	)

	BeforeEach(func() {
		apiMux := mux.NewRouter()
		cfg := config.GetConfig()
		cfg.ServiceToServiceCredentials[AUTHORIZED_CLIENT] = AUTHORIZED_PSK

		syncService = &mockSyncService{
			result: sync.SyncResult{Success: true, Count: 3, Message: "sync complete"},
			status: sync.Status{
				IsRunning:            false,
				LastSyncedMarkers:    map[domain.HospitalID]int64{"mercy-general": 501},
				ConfiguredIntervalMs: 60000,
			},
		}
		recordStore = newMockRecordStore()

		ms = NewManagementServer(syncService, recordStore, accesswindow.NewEvaluator(), apiMux, TEST_URL_BASE_PATH, cfg)
		ms.Routes()
	})

	Describe("Triggering a manual sync", func() {
		Context("With valid service to service credentials", func() {
			It("Should trigger a sync for all hospitals when no hospital id is provided", func() {

				req, err := http.NewRequest("POST", SYNC_ENDPOINT, nil)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(syncService.lastHospitalID).To(Equal(domain.HospitalID("")))

				var result sync.SyncResult
				json.Unmarshal(rr.Body.Bytes(), &result)
				Expect(result.Success).To(BeTrue())
				Expect(result.Count).To(Equal(3))
			})

			It("Should pass the requested hospital id through to the orchestrator", func() {

				postBody := strings.NewReader("{\"hospital_id\": \"mercy-general\"}")

				req, err := http.NewRequest("POST", SYNC_ENDPOINT, postBody)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(syncService.lastHospitalID).To(Equal(domain.HospitalID("mercy-general")))
			})

			It("Should report a conflict when a sync cycle is already running", func() {

				syncService.result = sync.SyncResult{Success: false, Message: "sync already in progress"}

				req, err := http.NewRequest("POST", SYNC_ENDPOINT, nil)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusConflict))
			})

			It("Should reject malformed json input", func() {

				postBody := strings.NewReader("{\"hospital_id\": ")

				req, err := http.NewRequest("POST", SYNC_ENDPOINT, postBody)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("Without service to service credentials", func() {
			It("Should reject the request", func() {

				req, err := http.NewRequest("POST", SYNC_ENDPOINT, nil)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})
	})

	Describe("Querying sync status", func() {
		It("Should return the cursor positions and running state", func() {

			req, err := http.NewRequest("GET", STATUS_ENDPOINT, nil)
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var status sync.Status
			json.Unmarshal(rr.Body.Bytes(), &status)
			Expect(status.IsRunning).To(BeFalse())
			Expect(status.LastSyncedMarkers).To(HaveKeyWithValue(domain.HospitalID("mercy-general"), int64(501)))
		})
	})

	Describe("Querying edit info for a record", func() {

		var (
			author domain.ActorRef
		)

		BeforeEach(func() {
			author = domain.ActorRef("doctor-1")
		})

		storeRecord := func(ref string, recordType domain.RecordType, age time.Duration, status domain.MedicationStatus) {
			arrival := time.Now().Add(-age)
			recordStore.recordsByRef[ref] = &domain.SyncedRecord{
				Ref:              ref,
				PatientRef:       "patient-1",
				RecordType:       recordType,
				CreatedByRef:     author,
				MedicationStatus: status,
				ArrivalTimestamp: &arrival,
			}
		}

		It("Should permit anyone to edit a fresh record", func() {

			storeRecord("record-1", domain.RecordTypeCondition, 30*time.Minute, "")

			req, err := http.NewRequest("POST", EDIT_INFO_ENDPOINT, createEditInfoPostBody("record-1", "some-other-actor"))
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var editInfo editInfoResponse
			json.Unmarshal(rr.Body.Bytes(), &editInfo)
			Expect(editInfo.CanEdit).To(BeTrue())
		})

		It("Should restrict an aging record to the author", func() {

			storeRecord("record-2", domain.RecordTypeCondition, 2*time.Hour+30*time.Minute, "")

			req, err := http.NewRequest("POST", EDIT_INFO_ENDPOINT, createEditInfoPostBody("record-2", "some-other-actor"))
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var editInfo editInfoResponse
			json.Unmarshal(rr.Body.Bytes(), &editInfo)
			Expect(editInfo.CanEdit).To(BeFalse())

			req, err = http.NewRequest("POST", EDIT_INFO_ENDPOINT, createEditInfoPostBody("record-2", string(author)))
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr = httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			json.Unmarshal(rr.Body.Bytes(), &editInfo)
			Expect(editInfo.CanEdit).To(BeTrue())
		})

		It("Should lock a record after the edit grace window", func() {

			storeRecord("record-3", domain.RecordTypeCondition, 4*time.Hour, "")

			req, err := http.NewRequest("POST", EDIT_INFO_ENDPOINT, createEditInfoPostBody("record-3", string(author)))
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var editInfo editInfoResponse
			json.Unmarshal(rr.Body.Bytes(), &editInfo)
			Expect(editInfo.CanEdit).To(BeFalse())
		})

		It("Should flip a stale medication status while answering", func() {

			storeRecord("record-4", domain.RecordTypeMedication, 4*time.Hour, domain.MedicationStatusActive)

			req, err := http.NewRequest("POST", EDIT_INFO_ENDPOINT, createEditInfoPostBody("record-4", string(author)))
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var editInfo editInfoResponse
			json.Unmarshal(rr.Body.Bytes(), &editInfo)
			Expect(editInfo.MedicationStatus).To(Equal(string(domain.MedicationStatusPast)))
			Expect(recordStore.updatedStatus).To(HaveKeyWithValue("record-4", domain.MedicationStatusPast))
		})

		It("Should return not found for an unknown record ref", func() {

			req, err := http.NewRequest("POST", EDIT_INFO_ENDPOINT, createEditInfoPostBody("no-such-record", string(author)))
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("Should reject a request missing required fields", func() {

			req, err := http.NewRequest("POST", EDIT_INFO_ENDPOINT, createEditInfoPostBody("record-1", ""))
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			ms.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
