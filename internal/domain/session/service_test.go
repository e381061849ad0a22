package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rips/rips/internal/domain/catalog"
	"github.com/rips/rips/internal/domain/compliance"
	"github.com/rips/rips/internal/domain/identity"
	"github.com/rips/rips/internal/domain/ingest"
)

const catalogCSV = "CUPS VIGENTE;Tipo Ser;NOMBRE CUPS\n" +
	"890201;CONSULTA;CONSULTA MEDICINA GENERAL\n" +
	"990203;PYP;EDUCACION INDIVIDUAL\n"

const rosterFile = "CC|1020304|PEREZ ANA|F|1990-05-01\n" +
	"TI|2030405|RUIZ LUIS|M|15/03/2015\n"

const serviceFile = "F01|CC-1020304|890201|2024-01-15\n" +
	"F02|CC-1020304|890201|2024-01-15\n" +
	"F03|TI-2030405|990203|2024-01-20\n"

// -- fakes --

type mockConfigRepo struct {
	mu       sync.Mutex
	settings *Settings
	err      error
}

func (m *mockConfigRepo) LoadConfig(context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.settings == nil {
		return nil, ErrNotFound
	}
	cp := *m.settings
	return &cp, nil
}

func (m *mockConfigRepo) SaveConfig(_ context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *s
	m.settings = &cp
	return nil
}

type mockSessionRepo struct {
	mu   sync.Mutex
	snap *Snapshot
	err  error
}

func (m *mockSessionRepo) LoadSession(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.snap == nil {
		return nil, ErrNotFound
	}
	return m.snap, nil
}

func (m *mockSessionRepo) SaveSession(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snap = snap
	return nil
}

func newTestService() (*Service, *mockConfigRepo, *mockSessionRepo) {
	cfg := &mockConfigRepo{}
	sess := &mockSessionRepo{}
	svc := NewService(ingest.NewIngester(2, zerolog.Nop()), cfg, sess, zerolog.Nop())
	return svc, cfg, sess
}

func testFiles() []ingest.File {
	return []ingest.File{
		ingest.BytesFile("US0001.txt", []byte(rosterFile)),
		ingest.BytesFile("AC0001.txt", []byte(serviceFile)),
	}
}

func ingestSample(t *testing.T, svc *Service) {
	t.Helper()
	rows := catalog.NewCSVRowReader(strings.NewReader(catalogCSV))
	if _, err := svc.Ingest(context.Background(), testFiles(), rows); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

var allActive = []compliance.Goal{
	{ServiceType: "CONSULTA", MonthlyGoal: 2, Active: true},
	{ServiceType: "PYP", MonthlyGoal: 4, Active: true},
}

// -- tests --

func TestService_IngestCommitsBatch(t *testing.T) {
	svc, _, _ := newTestService()
	rows := catalog.NewCSVRowReader(strings.NewReader(catalogCSV))

	summary, err := svc.Ingest(context.Background(), testFiles(), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Records != 3 || summary.Patients != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(svc.Records()) != 3 || len(svc.Patients()) != 2 {
		t.Errorf("expected committed state, got %d records %d patients", len(svc.Records()), len(svc.Patients()))
	}
}

func TestService_IngestInputAbsent(t *testing.T) {
	svc, _, _ := newTestService()
	rows := catalog.NewCSVRowReader(strings.NewReader(catalogCSV))

	if _, err := svc.Ingest(context.Background(), nil, rows); !errors.Is(err, ingest.ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
	if _, err := svc.Ingest(context.Background(), testFiles(), nil); !errors.Is(err, ingest.ErrNoCatalog) {
		t.Errorf("expected ErrNoCatalog, got %v", err)
	}
}

func TestService_FailedBatchKeepsState(t *testing.T) {
	svc, _, _ := newTestService()
	ingestSample(t, svc)

	bad := append(testFiles(), ingest.File{
		Name: "broken.txt",
		Open: func() (io.ReadCloser, error) { return nil, errors.New("disk gone") },
	})
	rows := catalog.NewCSVRowReader(strings.NewReader(catalogCSV))
	_, err := svc.Ingest(context.Background(), bad, rows)
	if !errors.Is(err, ingest.ErrBatchFailed) {
		t.Fatalf("expected ErrBatchFailed, got %v", err)
	}
	if len(svc.Records()) != 3 || len(svc.Patients()) != 2 {
		t.Errorf("state changed after failed batch: %d records %d patients", len(svc.Records()), len(svc.Patients()))
	}
}

func TestService_RosterMergesAcrossBatches(t *testing.T) {
	svc, _, _ := newTestService()
	ingestSample(t, svc)

	files := []ingest.File{ingest.BytesFile("US0002.txt", []byte("CC|5556667|NUEVO PACIENTE|M|2000-01-01\n"))}
	rows := catalog.NewCSVRowReader(strings.NewReader(catalogCSV))
	if _, err := svc.Ingest(context.Background(), files, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.Patients()) != 3 {
		t.Errorf("expected roster to persist across batches, got %d", len(svc.Patients()))
	}
	if len(svc.Records()) != 0 {
		t.Errorf("expected records replaced by the new batch, got %d", len(svc.Records()))
	}
}

func TestService_ReportRecomputedOnChange(t *testing.T) {
	svc, _, _ := newTestService()
	ingestSample(t, svc)

	if got := svc.Report().Stats.TotalRecords; got != 0 {
		t.Errorf("expected no records without active goals, got %d", got)
	}
	if err := svc.SetGoals(allActive); err != nil {
		t.Fatalf("set goals: %v", err)
	}
	rep := svc.Report()
	if rep.Stats.TotalRecords != 3 {
		t.Errorf("expected 3 records, got %d", rep.Stats.TotalRecords)
	}
	if svc.Report() != rep {
		t.Error("expected cached report without changes")
	}
	if err := svc.SetScale(3); err != nil {
		t.Fatalf("set scale: %v", err)
	}
	if got := svc.Report().Chart[0].Target; got != 6 {
		t.Errorf("expected scaled target 6, got %d", got)
	}
}

func TestService_SetScaleRejectsInvalid(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.SetScale(5); !errors.Is(err, compliance.ErrInvalidScale) {
		t.Errorf("expected ErrInvalidScale, got %v", err)
	}
	if svc.Scale() != 1 {
		t.Errorf("expected scale unchanged, got %d", svc.Scale())
	}
}

func TestService_DuplicateRemediation(t *testing.T) {
	svc, _, _ := newTestService()
	ingestSample(t, svc)
	if err := svc.SetGoals(allActive); err != nil {
		t.Fatalf("set goals: %v", err)
	}
	dups := svc.Report().Duplicates
	if len(dups) != 1 || dups[0].Count != 2 {
		t.Fatalf("expected one duplicate pair, got %+v", dups)
	}

	if n := svc.RemoveDuplicateGroup(dups[0].Key); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if len(svc.Report().Duplicates) != 0 {
		t.Error("expected duplicates gone after removal")
	}
	if n := svc.RemoveAllDuplicates(); n != 0 {
		t.Errorf("expected nothing left to remove, got %d", n)
	}
}

func TestService_ClearOperations(t *testing.T) {
	svc, _, _ := newTestService()
	ingestSample(t, svc)

	svc.ClearRecords()
	if len(svc.Records()) != 0 || len(svc.Patients()) != 2 {
		t.Error("ClearRecords must keep the roster")
	}
	svc.ClearRoster()
	if len(svc.Patients()) != 0 {
		t.Error("expected empty roster")
	}
}

func TestService_ConfigPersistence(t *testing.T) {
	svc, cfg, _ := newTestService()
	if svc.LoadConfig(context.Background()) {
		t.Error("expected load to fail when nothing is saved")
	}

	_ = svc.SetGoals(allActive)
	_ = svc.SetScale(6)
	if !svc.SaveConfig(context.Background()) {
		t.Fatal("expected save to succeed")
	}

	other := NewService(ingest.NewIngester(1, zerolog.Nop()), cfg, nil, zerolog.Nop())
	if !other.LoadConfig(context.Background()) {
		t.Fatal("expected load to succeed")
	}
	if other.Scale() != 6 || len(other.Goals()) != 2 {
		t.Errorf("unexpected loaded config: scale=%d goals=%v", other.Scale(), other.Goals())
	}
}

func TestService_PersistenceFailureKeepsState(t *testing.T) {
	svc, cfg, sess := newTestService()
	ingestSample(t, svc)
	_ = svc.SetGoals(allActive)

	cfg.err = errors.New("store offline")
	sess.err = errors.New("store offline")
	if svc.SaveConfig(context.Background()) || svc.LoadConfig(context.Background()) {
		t.Error("expected config persistence to report failure")
	}
	if svc.SaveSession(context.Background()) || svc.LoadSession(context.Background()) {
		t.Error("expected session persistence to report failure")
	}
	if len(svc.Records()) != 3 || len(svc.Goals()) != 2 {
		t.Error("in-memory state changed after persistence failure")
	}
}

func TestService_LoadConfigRejectsInvalid(t *testing.T) {
	svc, cfg, _ := newTestService()
	cfg.settings = &Settings{Goals: allActive, Scale: 7}
	if svc.LoadConfig(context.Background()) {
		t.Error("expected invalid scale to be rejected")
	}
	if len(svc.Goals()) != 0 || svc.Scale() != 1 {
		t.Error("rejected config must not change state")
	}
}

func TestService_SessionRoundTrip(t *testing.T) {
	svc, _, sess := newTestService()
	ingestSample(t, svc)
	if !svc.SaveSession(context.Background()) {
		t.Fatal("expected save to succeed")
	}
	if sess.snap == nil || len(sess.snap.Records) != 3 || len(sess.snap.Patients) != 2 {
		t.Fatalf("unexpected snapshot: %+v", sess.snap)
	}

	restored := NewService(ingest.NewIngester(1, zerolog.Nop()), nil, sess, zerolog.Nop())
	if !restored.LoadSession(context.Background()) {
		t.Fatal("expected load to succeed")
	}
	if len(restored.Records()) != 3 || len(restored.Patients()) != 2 {
		t.Errorf("unexpected restored state: %d records %d patients", len(restored.Records()), len(restored.Patients()))
	}
}

func TestService_NilRepositories(t *testing.T) {
	svc := NewService(ingest.NewIngester(1, zerolog.Nop()), nil, nil, zerolog.Nop())
	ctx := context.Background()
	if svc.SaveConfig(ctx) || svc.LoadConfig(ctx) || svc.SaveSession(ctx) || svc.LoadSession(ctx) {
		t.Error("expected all persistence calls to fail without stores")
	}
}

func TestService_Restore(t *testing.T) {
	svc, _, _ := newTestService()
	svc.Restore(
		[]ingest.ServiceRecord{{ServiceCode: "890201", PatientID: "1", ServiceType: "CONSULTA"}},
		[]identity.Patient{{ID: "cc-0001"}, {ID: "1", FullName: "UNO"}},
	)
	if len(svc.Records()) != 1 {
		t.Errorf("expected 1 record, got %d", len(svc.Records()))
	}
	ids := map[string]bool{}
	for _, p := range svc.Patients() {
		ids[p.ID] = true
	}
	if !ids["1"] || !ids["0001"] {
		t.Errorf("expected normalized patient IDs, got %v", ids)
	}
}

// gatedFile returns a file whose Open signals started and then waits for
// release before yielding content.
func gatedFile(name, content string, started, release chan struct{}) ingest.File {
	return ingest.File{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			close(started)
			<-release
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func testCatalogLoaded(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(catalog.NewCSVRowReader(strings.NewReader(catalogCSV)))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func rosterIDs(svc *Service) []string {
	var ids []string
	for _, p := range svc.Patients() {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestService_OverlappingBatchesKeepBothRosters(t *testing.T) {
	svc, _, _ := newTestService()
	cat := testCatalogLoaded(t)

	started, release := make(chan struct{}), make(chan struct{})
	slow := []ingest.File{gatedFile("US0001.txt", "CC|1111111|GOMEZ ANA|F|1990-05-01\n", started, release)}

	errc := make(chan error, 1)
	go func() {
		_, err := svc.IngestWithCatalog(context.Background(), slow, cat)
		errc <- err
	}()
	<-started

	fast := []ingest.File{ingest.BytesFile("US0002.txt", []byte("CC|2222222|RUIZ LUIS|M|2001-02-03\n"))}
	if _, err := svc.IngestWithCatalog(context.Background(), fast, cat); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first batch: %v", err)
	}

	ids := rosterIDs(svc)
	if len(ids) != 2 || ids[0] != "2222222" || ids[1] != "1111111" {
		t.Errorf("expected both committed patients in commit order, got %v", ids)
	}
}

func TestService_ClearRosterDuringBatchStaysCleared(t *testing.T) {
	svc, _, _ := newTestService()
	cat := testCatalogLoaded(t)
	first := []ingest.File{ingest.BytesFile("US0001.txt", []byte("CC|3333333|PEREZ ANA|F|1990-05-01\n"))}
	if _, err := svc.IngestWithCatalog(context.Background(), first, cat); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	started, release := make(chan struct{}), make(chan struct{})
	inFlight := []ingest.File{gatedFile("US0002.txt", "CC|4444444|RUIZ LUIS|M|2001-02-03\n", started, release)}
	errc := make(chan error, 1)
	go func() {
		_, err := svc.IngestWithCatalog(context.Background(), inFlight, cat)
		errc <- err
	}()
	<-started

	svc.ClearRoster()
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("in-flight batch: %v", err)
	}

	ids := rosterIDs(svc)
	if len(ids) != 1 || ids[0] != "4444444" {
		t.Errorf("expected only the in-flight batch's patient after clear, got %v", ids)
	}
}

func TestService_ConcurrentAccess(t *testing.T) {
	svc, _, _ := newTestService()
	ingestSample(t, svc)
	_ = svc.SetGoals(allActive)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = svc.Report()
			_ = svc.Records()
		}()
		go func(i int) {
			defer wg.Done()
			_ = svc.SetScale(compliance.ValidScales[i%len(compliance.ValidScales)])
		}(i)
	}
	wg.Wait()
	if svc.Report().Stats.TotalRecords != 3 {
		t.Error("unexpected report after concurrent access")
	}
}
