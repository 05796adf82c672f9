package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/carelink/emr-connector/internal/accesswindow"
	"github.com/carelink/emr-connector/internal/config"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/middlewares"
	logging "github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/records"
	"github.com/carelink/emr-connector/internal/sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SyncService is the slice of the orchestrator the management API exposes
// to operators.
type SyncService interface {
	SyncNow(hospitalID domain.HospitalID) sync.SyncResult
	Status() sync.Status
}

// ManagementServer exposes the operator-facing entry points: manual sync
// trigger, status query and the edit-gate query the surrounding CRUD layer
// consults before permitting a mutation.
type ManagementServer struct {
	syncService SyncService
	recordStore records.RecordStore
	evaluator   *accesswindow.Evaluator
	router      *mux.Router
	config      *config.Config
	urlPrefix   string
}

func NewManagementServer(syncService SyncService, recordStore records.RecordStore, evaluator *accesswindow.Evaluator, r *mux.Router, urlPrefix string, cfg *config.Config) *ManagementServer {
	return &ManagementServer{
		syncService: syncService,
		recordStore: recordStore,
		evaluator:   evaluator,
		router:      r,
		config:      cfg,
		urlPrefix:   urlPrefix,
	}
}

func (this *ManagementServer) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{
		Secrets: this.config.ServiceToServiceCredentials,
	}

	securedSubRouter := this.router.PathPrefix(this.urlPrefix).Subrouter()
	securedSubRouter.Use(logging.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/sync", this.handleSyncNow()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/status", this.handleStatus()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("/records/edit-info", this.handleEditInfo()).Methods(http.MethodPost)
}

type syncNowRequest struct {
	HospitalID string `json:"hospital_id"`
}

func (this *ManagementServer) handleSyncNow() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())

		logger := logging.Log.WithFields(logrus.Fields{
			"client_id": principal.GetClientID(),
		})

		var syncRequest syncNowRequest

		if req.ContentLength > 0 {
			body := http.MaxBytesReader(w, req.Body, 1048576)
			if err := decodeJSON(body, &syncRequest); err != nil {
				errMsg := "Unable to process json input"
				logging.LogWithError(logger, errMsg, err)
				errorResponse := errorResponse{Title: errMsg,
					Status: http.StatusBadRequest,
					Detail: err.Error()}
				writeJSONResponse(w, errorResponse.Status, errorResponse)
				return
			}
		}

		logger.Info("Manual sync triggered")

		result := this.syncService.SyncNow(domain.HospitalID(syncRequest.HospitalID))

		status := http.StatusOK
		if !result.Success {
			status = http.StatusConflict
		}

		writeJSONResponse(w, status, result)
	}
}

func (this *ManagementServer) handleStatus() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {
		writeJSONResponse(w, http.StatusOK, this.syncService.Status())
	}
}

type editInfoRequest struct {
	RecordRef string `json:"record_ref" validate:"required"`
	ActorRef  string `json:"actor_ref" validate:"required"`
}

type editInfoResponse struct {
	CanEdit          bool    `json:"can_edit"`
	HoursSinceSync   float64 `json:"hours_since_sync"`
	MedicationStatus string  `json:"medication_status"`
	Reason           string  `json:"reason"`
}

func (this *ManagementServer) handleEditInfo() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		var editRequest editInfoRequest

		body := http.MaxBytesReader(w, req.Body, 1048576)

		if err := decodeJSON(body, &editRequest); err != nil {
			errMsg := "Unable to process json input"
			logging.LogError(errMsg, err)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		record, err := this.recordStore.FindByRef(req.Context(), editRequest.RecordRef)
		if errors.Is(err, records.ErrNotFound) {
			errorResponse := errorResponse{Title: "Record not found",
				Status: http.StatusNotFound,
				Detail: "No record exists with the provided ref"}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}
		if err != nil {
			errMsg := "Unable to load record"
			logging.LogError(errMsg, err)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusInternalServerError,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		now := time.Now()

		// Reads are the reconciliation point for medication status; a
		// failed flip is logged but does not block the edit-gate answer.
		if _, _, err := this.evaluator.ReconcileMedicationStatus(req.Context(), this.recordStore, record, now); err != nil {
			logging.LogError("Unable to reconcile medication status", err)
		}

		editInfo := this.evaluator.GetEditInfo(record, domain.ActorRef(editRequest.ActorRef), now)

		writeJSONResponse(w, http.StatusOK, editInfoResponse{
			CanEdit:          editInfo.CanEdit,
			HoursSinceSync:   editInfo.HoursSinceSync,
			MedicationStatus: string(editInfo.MedicationStatus),
			Reason:           editInfo.Reason,
		})
	}
}
