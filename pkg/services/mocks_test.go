package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/assemblr-hq/assemblr-engine/pkg/adapters"
	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// mockActorRepository is an in-memory ActorRepository for unit tests. It
// enforces the same identity-slot uniqueness the partial indexes do so race
// handling can be exercised without a database.
type mockActorRepository struct {
	actors      map[uuid.UUID]*models.Actor
	eventCounts map[uuid.UUID]int
	createErr   error
	merged      [][2]uuid.UUID
}

func newMockActorRepository() *mockActorRepository {
	return &mockActorRepository{
		actors:      make(map[uuid.UUID]*models.Actor),
		eventCounts: make(map[uuid.UUID]int),
	}
}

func (m *mockActorRepository) Create(_ context.Context, actor *models.Actor) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.actors {
		if existing.OrgID != actor.OrgID {
			continue
		}
		if actor.PrimaryEmail != "" && existing.PrimaryEmail == actor.PrimaryEmail {
			return apperrors.ErrConflict
		}
		for _, source := range models.AllSources {
			if id := actor.SourceID(source); id != "" && existing.SourceID(source) == id {
				return apperrors.ErrConflict
			}
		}
	}
	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}
	copied := *actor
	m.actors[actor.ID] = &copied
	return nil
}

func (m *mockActorRepository) GetByID(_ context.Context, orgID, actorID uuid.UUID) (*models.Actor, error) {
	actor, ok := m.actors[actorID]
	if !ok || actor.OrgID != orgID {
		return nil, apperrors.ErrNotFound
	}
	copied := *actor
	return &copied, nil
}

func (m *mockActorRepository) FindBySourceID(_ context.Context, orgID uuid.UUID, source models.Source, externalID string) (*models.Actor, error) {
	for _, actor := range m.actors {
		if actor.OrgID == orgID && actor.SourceID(source) == externalID {
			copied := *actor
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockActorRepository) FindByEmail(_ context.Context, orgID uuid.UUID, email string) (*models.Actor, error) {
	for _, actor := range m.actors {
		if actor.OrgID == orgID && actor.PrimaryEmail == email {
			copied := *actor
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockActorRepository) FillMissingFields(_ context.Context, actorID uuid.UUID, source models.Source, hints models.ActorHints) error {
	actor, ok := m.actors[actorID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if actor.PrimaryEmail == "" {
		actor.PrimaryEmail = hints.Email
	}
	if actor.DisplayName == "" {
		actor.DisplayName = hints.DisplayName
	}
	if actor.SourceID(source) == "" {
		actor.SetSourceID(source, hints.ExternalID)
	}
	return nil
}

func (m *mockActorRepository) Merge(_ context.Context, primaryID, secondaryID uuid.UUID) error {
	primary, ok := m.actors[primaryID]
	if !ok {
		return apperrors.ErrNotFound
	}
	secondary, ok := m.actors[secondaryID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if primary.PrimaryEmail == "" {
		primary.PrimaryEmail = secondary.PrimaryEmail
	}
	if primary.DisplayName == "" {
		primary.DisplayName = secondary.DisplayName
	}
	for _, source := range models.AllSources {
		if primary.SourceID(source) == "" {
			primary.SetSourceID(source, secondary.SourceID(source))
		}
	}
	m.eventCounts[primaryID] += m.eventCounts[secondaryID]
	delete(m.eventCounts, secondaryID)
	delete(m.actors, secondaryID)
	m.merged = append(m.merged, [2]uuid.UUID{primaryID, secondaryID})
	return nil
}

func (m *mockActorRepository) CountEvents(_ context.Context, actorID uuid.UUID) (int, error) {
	return m.eventCounts[actorID], nil
}

// mockEventRepository is an in-memory EventRepository for unit tests.
type mockEventRepository struct {
	rawEvents       map[uuid.UUID]*models.RawEvent
	universalEvents []*models.UniversalEvent
}

func newMockEventRepository() *mockEventRepository {
	return &mockEventRepository{rawEvents: make(map[uuid.UUID]*models.RawEvent)}
}

func (m *mockEventRepository) CreateRaw(_ context.Context, raw *models.RawEvent) error {
	if raw.ID == uuid.Nil {
		raw.ID = uuid.New()
	}
	raw.ReceivedAt = time.Now()
	copied := *raw
	m.rawEvents[raw.ID] = &copied
	return nil
}

func (m *mockEventRepository) GetRawByID(_ context.Context, orgID, rawID uuid.UUID) (*models.RawEvent, error) {
	raw, ok := m.rawEvents[rawID]
	if !ok || raw.OrgID != orgID {
		return nil, apperrors.ErrNotFound
	}
	copied := *raw
	return &copied, nil
}

func (m *mockEventRepository) CreateUniversal(_ context.Context, event *models.UniversalEvent) (bool, error) {
	for _, e := range m.universalEvents {
		if e.RawEventID == event.RawEventID {
			return false, nil
		}
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	copied := *event
	m.universalEvents = append(m.universalEvents, &copied)
	return true, nil
}

func (m *mockEventRepository) ExistsForRawEvent(_ context.Context, rawEventID uuid.UUID) (bool, error) {
	for _, e := range m.universalEvents {
		if e.RawEventID == rawEventID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEventRepository) ListAnchorEvents(_ context.Context, orgID uuid.UUID, source models.Source, eventType string, since time.Time) ([]*models.UniversalEvent, error) {
	var matched []*models.UniversalEvent
	for _, e := range m.universalEvents {
		if e.OrgID == orgID && e.Source == source && e.EventType == eventType && !e.Timestamp.Before(since) {
			matched = append(matched, e)
		}
	}
	sortEventsByTime(matched)
	return matched, nil
}

func (m *mockEventRepository) ListWindow(_ context.Context, orgID uuid.UUID, from, to time.Time, excludeID uuid.UUID, limit int) ([]*models.UniversalEvent, error) {
	var matched []*models.UniversalEvent
	for _, e := range m.universalEvents {
		if e.OrgID != orgID || e.ID == excludeID {
			continue
		}
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		matched = append(matched, e)
	}
	sortEventsByTime(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func sortEventsByTime(events []*models.UniversalEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].Timestamp.Before(events[j-1].Timestamp); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

// mockClusterRepository is an in-memory ClusterRepository for unit tests.
type mockClusterRepository struct {
	clusters map[uuid.UUID]*models.WorkflowCluster
	order    []uuid.UUID
}

func newMockClusterRepository() *mockClusterRepository {
	return &mockClusterRepository{clusters: make(map[uuid.UUID]*models.WorkflowCluster)}
}

func (m *mockClusterRepository) Create(_ context.Context, cluster *models.WorkflowCluster) error {
	if cluster.ID == uuid.Nil {
		cluster.ID = uuid.New()
	}
	if cluster.Status == "" {
		cluster.Status = models.ClusterStatusCandidate
	}
	cluster.CreatedAt = time.Now()
	copied := *cluster
	m.clusters[cluster.ID] = &copied
	m.order = append(m.order, cluster.ID)
	return nil
}

func (m *mockClusterRepository) GetByID(_ context.Context, clusterID uuid.UUID) (*models.WorkflowCluster, error) {
	cluster, ok := m.clusters[clusterID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *cluster
	return &copied, nil
}

func (m *mockClusterRepository) ListByOrg(_ context.Context, orgID uuid.UUID, status string) ([]*models.WorkflowCluster, error) {
	var matched []*models.WorkflowCluster
	for _, id := range m.order {
		c := m.clusters[id]
		if c.OrgID == orgID && (status == "" || c.Status == status) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// mockSkillRepository is an in-memory SkillRepository for unit tests. It
// mirrors the transactional semantics of CreateWithVersion and
// InsertNextVersion, including the candidate-only status flip.
type mockSkillRepository struct {
	skills   map[uuid.UUID]*models.Skill
	versions map[uuid.UUID][]*models.SkillVersion
	clusters *mockClusterRepository
}

func newMockSkillRepository(clusters *mockClusterRepository) *mockSkillRepository {
	return &mockSkillRepository{
		skills:   make(map[uuid.UUID]*models.Skill),
		versions: make(map[uuid.UUID][]*models.SkillVersion),
		clusters: clusters,
	}
}

func (m *mockSkillRepository) CreateWithVersion(_ context.Context, skill *models.Skill, version *models.SkillVersion, clusterID uuid.UUID) error {
	cluster, ok := m.clusters.clusters[clusterID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if cluster.Status != models.ClusterStatusCandidate {
		return apperrors.ErrConflict
	}
	if skill.ID == uuid.Nil {
		skill.ID = uuid.New()
	}
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	skillCopy := *skill
	versionCopy := *version
	m.skills[skill.ID] = &skillCopy
	m.versions[skill.ID] = []*models.SkillVersion{&versionCopy}
	cluster.Status = models.ClusterStatusCompiled
	return nil
}

func (m *mockSkillRepository) GetByID(_ context.Context, skillID uuid.UUID) (*models.Skill, error) {
	skill, ok := m.skills[skillID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *skill
	return &copied, nil
}

func (m *mockSkillRepository) GetLatestVersion(_ context.Context, skillID uuid.UUID) (*models.SkillVersion, error) {
	for _, v := range m.versions[skillID] {
		if v.IsLatest {
			copied := *v
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNoLatestVersion
}

func (m *mockSkillRepository) InsertNextVersion(_ context.Context, version *models.SkillVersion) error {
	for _, v := range m.versions[version.SkillID] {
		v.IsLatest = false
	}
	copied := *version
	m.versions[version.SkillID] = append(m.versions[version.SkillID], &copied)
	return nil
}

func (m *mockSkillRepository) ListVersions(_ context.Context, skillID uuid.UUID) ([]*models.SkillVersion, error) {
	return m.versions[skillID], nil
}

// mockIntegrationRepository is an in-memory IntegrationRepository.
type mockIntegrationRepository struct {
	integrations map[uuid.UUID]*models.Integration
	savedCursors []string
}

func newMockIntegrationRepository() *mockIntegrationRepository {
	return &mockIntegrationRepository{integrations: make(map[uuid.UUID]*models.Integration)}
}

func (m *mockIntegrationRepository) Upsert(_ context.Context, integration *models.Integration) error {
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	copied := *integration
	m.integrations[integration.ID] = &copied
	return nil
}

func (m *mockIntegrationRepository) GetConnected(_ context.Context, orgID uuid.UUID, source models.Source) (*models.Integration, error) {
	for _, i := range m.integrations {
		if i.OrgID == orgID && i.Source == source && i.Status == models.IntegrationStatusConnected {
			copied := *i
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotConnected
}

func (m *mockIntegrationRepository) SaveCursor(_ context.Context, integrationID uuid.UUID, cursor string, syncedAt time.Time) error {
	integration, ok := m.integrations[integrationID]
	if !ok {
		return apperrors.ErrNotFound
	}
	integration.SyncCursor = cursor
	integration.LastSyncAt = &syncedAt
	m.savedCursors = append(m.savedCursors, cursor)
	return nil
}

func (m *mockIntegrationRepository) UpdateStatus(_ context.Context, integrationID uuid.UUID, status string) error {
	integration, ok := m.integrations[integrationID]
	if !ok {
		return apperrors.ErrNotFound
	}
	integration.Status = status
	return nil
}

// mockAdapter is a scripted IntegrationAdapter for unit tests.
type mockAdapter struct {
	source     models.Source
	pages      []*adapters.FetchPage
	fetchCalls int
	normalize  func(orgID uuid.UUID, raw adapters.RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput
}

func (m *mockAdapter) Source() models.Source { return m.source }

func (m *mockAdapter) FetchBackfill(_ context.Context, _, _ string) (*adapters.FetchPage, error) {
	if m.fetchCalls >= len(m.pages) {
		return &adapters.FetchPage{}, nil
	}
	page := m.pages[m.fetchCalls]
	m.fetchCalls++
	return page, nil
}

func (m *mockAdapter) FetchIncremental(ctx context.Context, connectionID string, _ time.Time) (*adapters.FetchPage, error) {
	return m.FetchBackfill(ctx, connectionID, "")
}

func (m *mockAdapter) NormalizeRaw(orgID uuid.UUID, raw adapters.RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput {
	if m.normalize != nil {
		return m.normalize(orgID, raw, rawEventID)
	}
	return &models.UniversalEventInput{
		OrgID:      orgID,
		Source:     m.source,
		EventType:  raw.Type,
		EntityType: models.EntityUnknown,
		EntityID:   raw.ID,
		Timestamp:  raw.Timestamp,
		RawEventID: rawEventID,
	}
}
