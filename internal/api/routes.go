package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/RMahshie/psychro/internal/api/handlers"
	"github.com/RMahshie/psychro/internal/processing"
	"github.com/RMahshie/psychro/internal/session"
	"github.com/RMahshie/psychro/internal/storage"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, sessions *session.Manager, extraction processing.ExtractionService, exemplars handlers.ExemplarCatalog, images storage.ImageStore) {
	sessionHandler := handlers.NewSessionHandler(sessions, extraction)
	calibrationHandler := handlers.NewCalibrationHandler(exemplars, images)

	// Session routes
	huma.Register(api, huma.Operation{
		OperationID:   "createSession",
		Method:        http.MethodPost,
		Path:          "/api/sessions",
		Summary:       "Create a measurement session",
		Description:   "Creates an idle session ready to receive a psychrometer photo",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
	}, sessionHandler.CreateSession)

	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}",
		Summary:     "Get session",
		Description: "Returns the workflow state, reading and derived humidity of a session",
		Tags:        []string{"Sessions"},
	}, sessionHandler.GetSession)

	huma.Register(api, huma.Operation{
		OperationID: "deleteSession",
		Method:      http.MethodDelete,
		Path:        "/api/sessions/{id}",
		Summary:     "Delete session",
		Description: "Cancels any extraction in progress and removes the session",
		Tags:        []string{"Sessions"},
	}, sessionHandler.DeleteSession)

	huma.Register(api, huma.Operation{
		OperationID:   "selectImage",
		Method:        http.MethodPost,
		Path:          "/api/sessions/{id}/image",
		Summary:       "Submit a photo",
		Description:   "Uploads a psychrometer photo and starts reading its thermometers in the background",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusAccepted,
		MaxBodyBytes:  handlers.MaxImageBodyBytes,
	}, sessionHandler.SelectImage)

	huma.Register(api, huma.Operation{
		OperationID: "editReading",
		Method:      http.MethodPut,
		Path:        "/api/sessions/{id}/reading",
		Summary:     "Edit reading",
		Description: "Replaces the dry and wet bulb values under review",
		Tags:        []string{"Sessions"},
	}, sessionHandler.EditReading)

	huma.Register(api, huma.Operation{
		OperationID: "calibrate",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{id}/calibrate",
		Summary:     "Commit calibration",
		Description: "Stores the photo and reviewed values as a calibration exemplar",
		Tags:        []string{"Sessions", "Calibration"},
	}, sessionHandler.Calibrate)

	huma.Register(api, huma.Operation{
		OperationID: "resetSession",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{id}/reset",
		Summary:     "Reset session",
		Description: "Returns the session to idle, discarding the current photo and reading",
		Tags:        []string{"Sessions"},
	}, sessionHandler.ResetSession)

	// Calibration routes
	huma.Register(api, huma.Operation{
		OperationID: "listExemplars",
		Method:      http.MethodGet,
		Path:        "/api/calibration/exemplars",
		Summary:     "List calibration exemplars",
		Description: "Returns the stored exemplars, newest first",
		Tags:        []string{"Calibration"},
	}, calibrationHandler.ListExemplars)

	huma.Register(api, huma.Operation{
		OperationID: "clearExemplars",
		Method:      http.MethodDelete,
		Path:        "/api/calibration/exemplars",
		Summary:     "Clear calibration exemplars",
		Description: "Removes every stored exemplar and its photo",
		Tags:        []string{"Calibration"},
	}, calibrationHandler.ClearExemplars)

	// Psychrometrics
	huma.Register(api, huma.Operation{
		OperationID: "computeHumidity",
		Method:      http.MethodPost,
		Path:        "/api/psychrometrics/compute",
		Summary:     "Compute humidity",
		Description: "Derives relative humidity and dew point from dry and wet bulb temperatures",
		Tags:        []string{"Psychrometrics"},
	}, handlers.Compute)
}
