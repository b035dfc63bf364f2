// Package scan walks the configured data directory into normalized folder
// records, resolving each identity folder against the repository directory
// and applying the configured filters and age policy.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/events"
	"github.com/datadock/datadock/pkg/identity"
)

// Folder is one local dataset directory admitted by a scan pass.
type Folder struct {
	// ID is unique within the session and never reused, even after a
	// rescan discards every previous folder.
	ID int

	// Path is the dataset directory. Name is its folder name, which
	// becomes the dataset description in the repository.
	Path string
	Name string

	Owner identity.Owner

	// Group is set for group layouts, where the owner is an access group
	// rather than an individual account.
	Group *identity.Owner

	// Experiment is the title the folder's datasets are grouped under.
	Experiment string

	// UserFolderName and GroupFolderName record the identity folder as it
	// appears on disk, for attribution on the server.
	UserFolderName  string
	GroupFolderName string

	Created time.Time
	Files   []File
}

// TotalBytes sums the sizes of the folder's member files.
func (f Folder) TotalBytes() int64 {
	var total int64
	for _, file := range f.Files {
		total += file.Size
	}
	return total
}

// File is one file inside a dataset folder.
type File struct {
	// Directory is the file's subdirectory relative to the dataset folder,
	// forward-slashed, empty for the top level.
	Directory string
	Name      string
	Size      int64
	ModTime   time.Time
}

// Config selects what a scan pass admits.
type Config struct {
	Root           string
	Schema         Schema
	InstrumentName string
	GroupPrefix    string
	Filters        Filters
	Age            AgeFilter

	// ValidateStructure makes a pass that finds no dataset folders a hard
	// error instead of a logged warning.
	ValidateStructure bool

	// UploadInvalidUserFolders substitutes the placeholder owner for
	// identity folders with no matching account. When false those folders
	// are skipped with a warning.
	UploadInvalidUserFolders bool

	// Unattended downgrades instrument folder mismatches from hard errors
	// to logged skips, so scheduled passes keep going.
	Unattended bool
}

// Scanner walks the data directory into Folder records. A scanner may run
// many passes; folder ids keep increasing across them.
type Scanner struct {
	directory identity.Directory
	config    Config
	clock     clockwork.Clock

	mu     sync.Mutex
	lastID int
}

// New creates a scanner over the given repository directory.
func New(directory identity.Directory, config Config) *Scanner {
	return &Scanner{
		directory: directory,
		config:    config,
		clock:     clockwork.NewRealClock(),
	}
}

// nextID allocates the next folder id, a running maximum.
func (s *Scanner) nextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID
}

// Scan runs one pass over the data directory. The progress callback, if
// non-nil, fires after each identity folder. Cancellation is honored at
// identity folder boundaries; a canceled pass returns ErrCanceled and no
// folders.
func (s *Scanner) Scan(ctx context.Context, progress func(identityFolder string)) ([]Folder, error) {
	root := s.config.Root
	info, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat data directory")
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %q is not a directory", root)
	}

	// A fresh resolver per pass: accounts created since the last pass must
	// be visible in this one.
	resolver := identity.NewResolver(
		s.directory, s.config.Schema.MatchByEmail(), s.config.GroupPrefix)

	identityFolders, err := listSubdirectories(root)
	if err != nil {
		return nil, err
	}

	var folders []Folder
	for _, identityFolder := range identityFolders {
		select {
		case <-ctx.Done():
			return nil, errors.ErrCanceled
		default:
		}

		if !s.config.Filters.MatchesUser(identityFolder) {
			continue
		}

		found, err := s.scanIdentityFolder(ctx, resolver, identityFolder)
		if err != nil {
			return nil, err
		}
		folders = append(folders, found...)

		if progress != nil {
			progress(identityFolder)
		}
	}

	if len(folders) == 0 {
		if s.config.ValidateStructure {
			return nil, errors.StructureError{
				Path: root, Reason: "no dataset folders found"}
		}
		log.Warnf("No dataset folders found under %q.", root)
	}

	summary := events.ScanSummary{Folders: len(folders)}
	for _, folder := range folders {
		summary.Files += len(folder.Files)
		summary.Bytes += folder.TotalBytes()
	}
	events.PublishScanDone(summary)
	return folders, nil
}

func (s *Scanner) scanIdentityFolder(ctx context.Context,
	resolver *identity.Resolver, identityFolder string) ([]Folder, error) {

	base := filepath.Join(s.config.Root, identityFolder)

	if s.config.Schema.IsGroup() {
		group, ok, err := s.resolveGroup(ctx, resolver, identityFolder)
		if err != nil || !ok {
			return nil, err
		}
		return s.scanGroupFolder(base, identityFolder, group)
	}

	owner, ok, err := s.resolveUser(ctx, resolver, identityFolder)
	if err != nil || !ok {
		return nil, err
	}

	switch s.config.Schema {
	case SchemaUserDataset, SchemaEmailDataset:
		return s.scanDatasetLevel(base, owner, nil, identityFolder, "",
			fmt.Sprintf("%s - %s", s.config.InstrumentName, owner.Name))

	case SchemaUserExperimentDataset, SchemaEmailExperimentDataset:
		return s.scanExperimentLevel(base, owner, identityFolder)

	case SchemaUserMarkerExperimentDataset:
		markerPath := filepath.Join(base, MarkerFolder)
		exists, err := afero.DirExists(fs, markerPath)
		if err != nil {
			return nil, errors.WithContext(err, "stat marker folder")
		}
		if !exists {
			if s.config.ValidateStructure {
				return nil, errors.StructureError{
					Path:   base,
					Reason: fmt.Sprintf("no %q folder", MarkerFolder)}
			}
			log.Warnf("Skipping %q: no %q folder.", base, MarkerFolder)
			return nil, nil
		}
		return s.scanExperimentLevel(markerPath, owner, identityFolder)

	default:
		return nil, fmt.Errorf("unsupported folder structure %q", s.config.Schema)
	}
}

// resolveUser maps an identity folder to its account. The second return is
// false when the folder should be skipped.
func (s *Scanner) resolveUser(ctx context.Context, resolver *identity.Resolver,
	folderName string) (identity.Owner, bool, error) {

	owner, err := resolver.Resolve(ctx, identity.KindUser, folderName)
	switch {
	case err == nil:
		return owner, true, nil

	case errors.IsNotFound(err):
		if s.config.UploadInvalidUserFolders {
			log.Warnf("Folder %q has no matching account; uploading under "+
				"the placeholder owner.", folderName)
			return identity.Placeholder(folderName), true, nil
		}
		log.Warnf("Skipping folder %q: no matching account.", folderName)
		return identity.Owner{}, false, nil

	default:
		return identity.Owner{}, false, errors.WithContext(err, "resolve owner")
	}
}

func (s *Scanner) resolveGroup(ctx context.Context, resolver *identity.Resolver,
	folderName string) (identity.Owner, bool, error) {

	group, err := resolver.Resolve(ctx, identity.KindGroup, folderName)
	switch {
	case err == nil:
		return group, true, nil
	case errors.IsNotFound(err):
		log.Warnf("Skipping folder %q: no matching group.", folderName)
		return identity.Owner{}, false, nil
	default:
		return identity.Owner{}, false, errors.WithContext(err, "resolve group")
	}
}

// scanExperimentLevel admits the datasets under each experiment folder,
// titling them by the experiment folder name.
func (s *Scanner) scanExperimentLevel(base string, owner identity.Owner,
	userFolderName string) ([]Folder, error) {

	experimentFolders, err := listSubdirectories(base)
	if err != nil {
		return nil, err
	}

	var folders []Folder
	for _, experimentFolder := range experimentFolders {
		if !s.config.Filters.MatchesExperiment(experimentFolder) {
			continue
		}

		found, err := s.scanDatasetLevel(filepath.Join(base, experimentFolder),
			owner, nil, userFolderName, "", experimentFolder)
		if err != nil {
			return nil, err
		}
		folders = append(folders, found...)
	}
	return folders, nil
}

// scanGroupFolder descends Group/Instrument/FullName/Dataset. Every
// instrument folder must name this instrument; anything else is either a
// hard structure error or, unattended, a logged skip.
func (s *Scanner) scanGroupFolder(base, groupFolderName string,
	group identity.Owner) ([]Folder, error) {

	instrumentFolders, err := listSubdirectories(base)
	if err != nil {
		return nil, err
	}

	var folders []Folder
	for _, instrumentFolder := range instrumentFolders {
		instrumentPath := filepath.Join(base, instrumentFolder)
		if instrumentFolder != s.config.InstrumentName {
			if !s.config.Unattended {
				return nil, errors.StructureError{
					Path: instrumentPath,
					Reason: fmt.Sprintf("expected instrument folder %q, found %q",
						s.config.InstrumentName, instrumentFolder)}
			}
			log.Warnf("Skipping %q: expected instrument folder %q.",
				instrumentPath, s.config.InstrumentName)
			continue
		}

		fullNameFolders, err := listSubdirectories(instrumentPath)
		if err != nil {
			return nil, err
		}

		for _, fullNameFolder := range fullNameFolders {
			if !s.config.Filters.MatchesExperiment(fullNameFolder) {
				continue
			}

			found, err := s.scanDatasetLevel(
				filepath.Join(instrumentPath, fullNameFolder),
				group, &group, "", groupFolderName, fullNameFolder)
			if err != nil {
				return nil, err
			}
			folders = append(folders, found...)
		}
	}
	return folders, nil
}

// scanDatasetLevel admits the dataset folders directly under base.
func (s *Scanner) scanDatasetLevel(base string, owner identity.Owner,
	group *identity.Owner, userFolderName, groupFolderName,
	experimentTitle string) ([]Folder, error) {

	datasetFolders, err := listSubdirectories(base)
	if err != nil {
		return nil, err
	}

	var folders []Folder
	for _, datasetFolder := range datasetFolders {
		if !s.config.Filters.MatchesDataset(datasetFolder) {
			continue
		}

		datasetPath := filepath.Join(base, datasetFolder)
		info, err := fs.Stat(datasetPath)
		if err != nil {
			return nil, errors.WithContext(err, "stat dataset folder")
		}

		excluded, err := s.config.Age.Excludes(info.ModTime(), s.clock.Now())
		if err != nil {
			return nil, err
		}
		if excluded {
			log.Infof("Skipping %q: older than the configured age threshold.",
				datasetPath)
			continue
		}

		files, err := collectFiles(datasetPath)
		if err != nil {
			return nil, err
		}

		folder := Folder{
			ID:              s.nextID(),
			Path:            datasetPath,
			Name:            datasetFolder,
			Owner:           owner,
			Group:           group,
			Experiment:      experimentTitle,
			UserFolderName:  userFolderName,
			GroupFolderName: groupFolderName,
			Created:         info.ModTime(),
			Files:           files,
		}
		folders = append(folders, folder)

		events.PublishFolderFound(events.FolderFound{
			Dataset:    folder.Name,
			Owner:      folder.Owner.Name,
			Experiment: folder.Experiment,
			Files:      len(folder.Files),
			Bytes:      folder.TotalBytes(),
		})
	}
	return folders, nil
}

// listSubdirectories returns the names of base's child directories in the
// filesystem's listing order, skipping hidden entries.
func listSubdirectories(base string) ([]string, error) {
	infos, err := afero.ReadDir(fs, base)
	if err != nil {
		return nil, errors.WithContext(err, "list "+base)
	}

	var names []string
	for _, info := range infos {
		if !info.IsDir() || isHidden(info.Name()) {
			continue
		}
		names = append(names, info.Name())
	}
	return names, nil
}

// collectFiles walks the whole dataset folder, any depth, and returns its
// member files.
func collectFiles(datasetPath string) ([]File, error) {
	var files []File
	err := afero.Walk(fs, datasetPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if isHidden(info.Name()) && path != datasetPath {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		relDir, err := filepath.Rel(datasetPath, filepath.Dir(path))
		if err != nil {
			return err
		}
		if relDir == "." {
			relDir = ""
		}

		files = append(files, File{
			Directory: filepath.ToSlash(relDir),
			Name:      info.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.WithContext(err, "walk "+datasetPath)
	}
	return files, nil
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
