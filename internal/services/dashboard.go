package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"userdesk/internal/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrProfileNotListed is returned when an intent names a profile that is not in the loaded collection.
var ErrProfileNotListed = errors.New("user profile is not in the current list")

// ProfileStore is the part of UserProfileService the console needs.
type ProfileStore interface {
	ListAll() ([]models.UserProfile, error)
	Create(draft models.NewUserProfile) (*models.UserProfile, error)
	Update(id string, patch *models.UserProfilePatch) (*models.UserProfile, error)
	Delete(id string) error
}

// View is the primary panel of the console.
type View string

const (
	ViewList View = "list"
	ViewAdd  View = "add"
)

// DashboardState is a snapshot of the console for rendering.
type DashboardState struct {
	Users    []models.UserProfile
	Visible  []models.UserProfile
	Loading  bool
	View     View
	Editing  *models.UserProfile
	Viewing  *models.UserProfile
	Deleting *models.UserProfile
	Banner   string
	Query    ListQuery
}

// Dashboard is the console of one browser session. It owns the loaded
// collection and replaces it wholesale after every successful mutation.
// Overlays (editing, viewing, deleting) are independent of the list/add view.
type Dashboard struct {
	// opMu serialises store calls; mu guards the fields below.
	opMu sync.Mutex
	mu   sync.Mutex

	store    ProfileStore
	validate *validator.Validate
	log      *zap.Logger

	users    []models.UserProfile
	loaded   bool
	loading  bool
	view     View
	editing  *models.UserProfile
	viewing  *models.UserProfile
	deleting *models.UserProfile
	banner   string
	query    ListQuery
	addForm  *ProfileForm
	editForm *ProfileForm
	lastSeen time.Time
}

// NewDashboard creates a console showing the list view.
func NewDashboard(store ProfileStore, v *validator.Validate, log *zap.Logger) *Dashboard {
	return &Dashboard{
		store:    store,
		validate: v,
		log:      log,
		view:     ViewList,
		query:    DefaultListQuery(),
		lastSeen: time.Now(),
	}
}

// EnsureLoaded performs the initial load once.
func (d *Dashboard) EnsureLoaded() {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	loaded := d.loaded
	d.mu.Unlock()
	if !loaded {
		d.reload()
	}
}

// Load re-fetches the whole collection.
func (d *Dashboard) Load() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()
	return d.reload()
}

// reload must be called with opMu held. On failure the previous collection stays.
func (d *Dashboard) reload() error {
	d.mu.Lock()
	d.loading = true
	d.mu.Unlock()

	users, err := d.store.ListAll()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = false
	d.loaded = true
	if err != nil {
		d.log.Error("failed to load users", zap.Error(err))
		d.banner = BannerLoadFailed
		return err
	}
	d.users = users
	d.banner = ""
	return nil
}

// State returns a snapshot of the console.
func (d *Dashboard) State() DashboardState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DashboardState{
		Users:    slices.Clone(d.users),
		Visible:  FilterAndSort(d.users, d.query),
		Loading:  d.loading,
		View:     d.view,
		Editing:  d.editing,
		Viewing:  d.viewing,
		Deleting: d.deleting,
		Banner:   d.banner,
		Query:    d.query,
	}
}

// Search sets the search term of the list.
func (d *Dashboard) Search(term string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.query.Search = term
}

// ToggleSort applies a click on the header of field.
func (d *Dashboard) ToggleSort(field SortField) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.query = d.query.ToggleSort(field)
}

// ShowAdd switches to the add view.
func (d *Dashboard) ShowAdd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = ViewAdd
}

// ShowList switches to the list view and discards the add draft.
func (d *Dashboard) ShowList() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = ViewList
	d.addForm = nil
}

// AddForm returns the draft of the add view, creating it on first use.
func (d *Dashboard) AddForm() *ProfileForm {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addForm == nil {
		d.addForm = NewProfileForm(d.validate, d.log, nil)
	}
	return d.addForm
}

// EditForm returns the draft of the edit overlay, or nil when nothing is being edited.
func (d *Dashboard) EditForm() *ProfileForm {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editForm
}

// StartEdit opens the edit overlay for the listed profile with the given ID.
// Reopening the profile already being edited keeps its draft.
func (d *Dashboard) StartEdit(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.editing != nil && d.editing.ID == id && d.editForm != nil {
		return nil
	}
	p, err := d.findLocked(id)
	if err != nil {
		return err
	}
	d.editing = p
	d.editForm = NewProfileForm(d.validate, d.log, p)
	return nil
}

// CancelEdit closes the edit overlay.
func (d *Dashboard) CancelEdit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.editing = nil
	d.editForm = nil
}

// StartView opens the read-only overlay for the listed profile with the given ID.
func (d *Dashboard) StartView(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.findLocked(id)
	if err != nil {
		return err
	}
	d.viewing = p
	return nil
}

// CloseView closes the read-only overlay.
func (d *Dashboard) CloseView() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewing = nil
}

// StartDelete asks for confirmation before deleting the listed profile with the given ID.
func (d *Dashboard) StartDelete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.findLocked(id)
	if err != nil {
		return err
	}
	d.deleting = p
	return nil
}

// CancelDelete closes the confirmation without touching the store.
func (d *Dashboard) CancelDelete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleting = nil
}

// SubmitCreate stores the add draft, reloads and returns to the list.
// On failure the add view and its draft stay as they are.
// A submit of the same draft while one is in flight fails with ErrSubmitInFlight.
func (d *Dashboard) SubmitCreate() error {
	form := d.AddForm()
	err := form.Submit(func(draft models.NewUserProfile) error {
		d.opMu.Lock()
		defer d.opMu.Unlock()
		if _, err := d.store.Create(draft); err != nil {
			return err
		}
		d.reload()
		return nil
	})
	if err != nil {
		d.failWith(err, BannerCreateFailed)
		return err
	}

	d.mu.Lock()
	if d.addForm == form {
		d.view = ViewList
		d.addForm = nil
	}
	d.mu.Unlock()
	return nil
}

// SubmitUpdate stores the edit draft, reloads and closes the overlay.
// On failure the overlay stays open with its draft.
func (d *Dashboard) SubmitUpdate() error {
	d.mu.Lock()
	editing, form := d.editing, d.editForm
	d.mu.Unlock()
	if editing == nil || form == nil {
		return nil
	}

	err := form.Submit(func(draft models.NewUserProfile) error {
		d.opMu.Lock()
		defer d.opMu.Unlock()
		if _, err := d.store.Update(editing.ID, models.PatchFromDraft(draft)); err != nil {
			return err
		}
		d.reload()
		return nil
	})
	if err != nil {
		d.failWith(err, BannerUpdateFailed)
		return err
	}

	d.mu.Lock()
	if d.editForm == form {
		d.editing = nil
		d.editForm = nil
	}
	d.mu.Unlock()
	return nil
}

// ConfirmDelete deletes the profile awaiting confirmation and reloads.
// On failure the confirmation stays open.
func (d *Dashboard) ConfirmDelete() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	deleting := d.deleting
	d.mu.Unlock()
	if deleting == nil {
		return nil
	}

	if err := d.store.Delete(deleting.ID); err != nil {
		d.failWith(err, BannerDeleteFailed)
		return err
	}
	d.reload()

	d.mu.Lock()
	d.deleting = nil
	d.mu.Unlock()
	return nil
}

// LastSeen returns when the session last used the console.
func (d *Dashboard) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

func (d *Dashboard) touch(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = now
}

// failWith sets the banner for store failures. Field level validation
// errors are shown next to the fields instead.
func (d *Dashboard) failWith(err error, banner string) {
	var verr ValidationErrors
	if errors.As(err, &verr) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.banner = banner
}

func (d *Dashboard) findLocked(id string) (*models.UserProfile, error) {
	for i := range d.users {
		if d.users[i].ID == id {
			p := d.users[i]
			return &p, nil
		}
	}
	return nil, ErrProfileNotListed
}

// Dashboards keeps one Dashboard per browser session.
type Dashboards struct {
	mu      sync.Mutex
	byID    map[string]*Dashboard
	factory func() *Dashboard
	now     func() time.Time
}

// NewDashboards creates a registry that builds new consoles with factory.
func NewDashboards(factory func() *Dashboard) *Dashboards {
	return &Dashboards{
		byID:    make(map[string]*Dashboard),
		factory: factory,
		now:     time.Now,
	}
}

// Get returns the console of the session, creating it on first use.
func (r *Dashboards) Get(sessionID string) *Dashboard {
	r.mu.Lock()
	d, ok := r.byID[sessionID]
	if !ok {
		d = r.factory()
		r.byID[sessionID] = d
	}
	r.mu.Unlock()

	d.touch(r.now())
	return d
}

// Len returns the number of live consoles.
func (r *Dashboards) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Sweep drops consoles idle for longer than maxIdle and returns how many were dropped.
func (r *Dashboards) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for id, d := range r.byID {
		if d.LastSeen().Before(cutoff) {
			delete(r.byID, id)
			dropped++
		}
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Dashboards) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(maxIdle)
		}
	}
}
