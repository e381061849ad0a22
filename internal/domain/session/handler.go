package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rips/rips/internal/domain/catalog"
	"github.com/rips/rips/internal/domain/compliance"
	"github.com/rips/rips/internal/domain/ingest"
	"github.com/rips/rips/internal/platform/auth"
	"github.com/rips/rips/internal/platform/export"
	"github.com/rips/rips/internal/platform/textdecode"
	"github.com/rips/rips/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/ingest", h.Ingest)

	api.GET("/report", h.GetReport)
	api.GET("/stats", h.GetStats)
	api.GET("/chart", h.GetChart)
	api.GET("/rankings/codes", h.GetCodeRanking)
	api.GET("/rankings/patients", h.GetPatientRanking)
	api.GET("/duplicates", h.GetDuplicates)
	api.GET("/export/:view", h.Export)

	api.GET("/goals", h.GetGoals)
	api.PUT("/goals", h.PutGoals)
	api.GET("/scale", h.GetScale)
	api.PUT("/scale", h.PutScale)
	api.DELETE("/records", h.ClearRecords)
	api.DELETE("/roster", h.ClearRoster)

	api.POST("/config/save", h.SaveConfig)
	api.POST("/config/load", h.LoadConfig)
	api.POST("/session/save", h.SaveSession)
	api.POST("/session/load", h.LoadSession)

	// Duplicate remediation deletes records and is restricted.
	remediate := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleAuditor))
	remediate.DELETE("/duplicates", h.RemoveAllDuplicates)
	remediate.POST("/duplicates/remove", h.RemoveDuplicateGroup)
}

const errBatchMessage = "batch ingestion failed"

// Ingest expects a multipart form with one "catalog" CSV file and one or more
// "files" RIPS exports.
func (h *Handler) Ingest(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}

	catalogs := form.File["catalog"]
	if len(catalogs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, ingest.ErrNoCatalog.Error())
	}
	rows, err := catalogRows(catalogs[0])
	if err != nil {
		c.Logger().Errorf("read catalog %s: %v", catalogs[0].Filename, err)
		return echo.NewHTTPError(http.StatusInternalServerError, errBatchMessage)
	}

	var files []ingest.File
	for _, fh := range form.File["files"] {
		files = append(files, ingest.File{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	summary, err := h.svc.Ingest(c.Request().Context(), files, rows)
	switch {
	case errors.Is(err, ingest.ErrNoFiles), errors.Is(err, ingest.ErrNoCatalog):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, errBatchMessage)
	}
	return c.JSON(http.StatusOK, summary)
}

func catalogRows(fh *multipart.FileHeader) (catalog.RowReader, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	text, err := textdecode.Decode(raw)
	if err != nil {
		return nil, err
	}
	return catalog.NewCSVRowReader(strings.NewReader(text)), nil
}

func (h *Handler) GetReport(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Report())
}

func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Report().Stats)
}

func (h *Handler) GetChart(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Report().Chart)
}

func (h *Handler) GetCodeRanking(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.svc.Report().CodeRanking, pagination.FromContext(c)))
}

func (h *Handler) GetPatientRanking(c echo.Context) error {
	return c.JSON(http.StatusOK, pagination.Page(h.svc.Report().PatientRanking, pagination.FromContext(c)))
}

func (h *Handler) GetDuplicates(c echo.Context) error {
	dups := h.svc.Report().Duplicates
	if dups == nil {
		dups = []compliance.DuplicateGroup{}
	}
	return c.JSON(http.StatusOK, dups)
}

func (h *Handler) Export(c echo.Context) error {
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	table, ok := compliance.ExportTable(h.svc.Report(), c.Param("view"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown export view")
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, table, format); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", table.Name+format.Extension()))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) GetGoals(c echo.Context) error {
	goals := h.svc.Goals()
	if goals == nil {
		goals = []compliance.Goal{}
	}
	return c.JSON(http.StatusOK, goals)
}

func (h *Handler) PutGoals(c echo.Context) error {
	var goals []compliance.Goal
	if err := c.Bind(&goals); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.SetGoals(goals); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.Goals())
}

type scaleBody struct {
	Scale int `json:"scale"`
}

func (h *Handler) GetScale(c echo.Context) error {
	return c.JSON(http.StatusOK, scaleBody{Scale: h.svc.Scale()})
}

func (h *Handler) PutScale(c echo.Context) error {
	var body scaleBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.SetScale(body.Scale); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, scaleBody{Scale: h.svc.Scale()})
}

func (h *Handler) ClearRecords(c echo.Context) error {
	h.svc.ClearRecords()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ClearRoster(c echo.Context) error {
	h.svc.ClearRoster()
	return c.NoContent(http.StatusNoContent)
}

type removedBody struct {
	Removed int `json:"removed"`
}

// RemoveAllDuplicates requires ?confirm=true.
func (h *Handler) RemoveAllDuplicates(c echo.Context) error {
	if c.QueryParam("confirm") != "true" {
		return echo.NewHTTPError(http.StatusBadRequest, "confirm=true is required")
	}
	return c.JSON(http.StatusOK, removedBody{Removed: h.svc.RemoveAllDuplicates()})
}

func (h *Handler) RemoveDuplicateGroup(c echo.Context) error {
	var key ingest.DuplicateKey
	if err := c.Bind(&key); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if key.PatientID == "" || key.ServiceCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and service_code are required")
	}
	return c.JSON(http.StatusOK, removedBody{Removed: h.svc.RemoveDuplicateGroup(key)})
}

type okBody struct {
	OK bool `json:"ok"`
}

func (h *Handler) SaveConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, okBody{OK: h.svc.SaveConfig(c.Request().Context())})
}

func (h *Handler) LoadConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, okBody{OK: h.svc.LoadConfig(c.Request().Context())})
}

func (h *Handler) SaveSession(c echo.Context) error {
	return c.JSON(http.StatusOK, okBody{OK: h.svc.SaveSession(c.Request().Context())})
}

func (h *Handler) LoadSession(c echo.Context) error {
	return c.JSON(http.StatusOK, okBody{OK: h.svc.LoadSession(c.Request().Context())})
}
