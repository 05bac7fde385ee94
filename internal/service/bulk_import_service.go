package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
)

// ZipSubmissionContent marks submissions created from a teacher's archive.
const ZipSubmissionContent = "Submitted via ZIP by teacher"

// Reasons reported for archive folders that produced no submission.
const (
	SkipNoStudent     = "no matching student in classroom"
	SkipAmbiguousName = "folder name matches more than one student"
	SkipDuplicate     = "student already imported from another folder"
	SkipNoImages      = "no jpg or png images"
	SkipUploadFailed  = "image upload failed"
	SkipStoreFailed   = "submission could not be saved"
)

var (
	// ErrInvalidArchive indicates the upload is not a readable zip archive.
	ErrInvalidArchive = errors.New("invalid zip archive")
	// ErrArchiveTooLarge indicates the archive exceeds the configured limit.
	ErrArchiveTooLarge = errors.New("archive exceeds maximum allowed size")
)

var importImageExtensions = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}}

// ImportResult carries the import summary and the grading jobs the caller
// schedules after responding.
type ImportResult struct {
	Summary dto.ImportResponse
	Jobs    []GradingJob
}

// BulkImportService turns a teacher's archive of per-student image folders
// into submissions.
type BulkImportService interface {
	Import(ctx context.Context, actor Actor, assignmentID uint, archive io.ReaderAt, size int64) (ImportResult, error)
}

type bulkImportService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	images      FileStorage
	folder      string
	maxArchive  int64
	maxImage    int64
	logger      zerolog.Logger
	now         func() time.Time
}

// BulkImportConfig bounds archive processing.
type BulkImportConfig struct {
	Folder          string
	MaxArchiveBytes int64
	MaxImageBytes   int64
}

// NewBulkImportService constructs a BulkImportService.
func NewBulkImportService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, images FileStorage, cfg BulkImportConfig, logger zerolog.Logger) BulkImportService {
	return &bulkImportService{
		assignments: assignments,
		submissions: submissions,
		images:      images,
		folder:      strings.Trim(cfg.Folder, "/"),
		maxArchive:  cfg.MaxArchiveBytes,
		maxImage:    cfg.MaxImageBytes,
		logger:      logger.With().Str("component", "bulk_import_service").Logger(),
		now:         time.Now,
	}
}

type archiveFolder struct {
	name  string
	files []*zip.File
}

func (s *bulkImportService) Import(ctx context.Context, actor Actor, assignmentID uint, archive io.ReaderAt, size int64) (ImportResult, error) {
	if !actor.IsTeacher() {
		return ImportResult{}, ErrForbidden
	}
	if s.maxArchive > 0 && size > s.maxArchive {
		return ImportResult{}, ErrArchiveTooLarge
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ImportResult{}, ErrAssignmentNotFound
		}
		return ImportResult{}, err
	}
	if assignment.TeacherID != actor.ID {
		return ImportResult{}, ErrForbidden
	}

	reader, err := zip.NewReader(archive, size)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	roster := buildRoster(assignment.Classroom.Students)
	folders := groupArchive(reader.File)

	result := ImportResult{Summary: dto.ImportResponse{Skipped: []dto.ImportSkip{}}}
	imported := make(map[uint]struct{})

	for _, folder := range folders {
		logger := s.logger.With().Str("folder", folder.name).Uint("assignment_id", assignment.ID).Logger()

		matches := roster[normalizeName(folder.name)]
		switch {
		case len(matches) == 0:
			result.skip(folder.name, SkipNoStudent)
			continue
		case len(matches) > 1:
			result.skip(folder.name, SkipAmbiguousName)
			continue
		}
		student := matches[0]
		if _, done := imported[student.ID]; done {
			result.skip(folder.name, SkipDuplicate)
			continue
		}

		if len(folder.files) == 0 {
			result.skip(folder.name, SkipNoImages)
			continue
		}

		refs, err := s.uploadFolder(ctx, folder, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to upload archive images")
			result.skip(folder.name, SkipUploadFailed)
			continue
		}
		if len(refs) == 0 {
			result.skip(folder.name, SkipNoImages)
			continue
		}

		submission, created, err := s.upsert(ctx, assignment.ID, student.ID, refs)
		if err != nil {
			logger.Error().Err(err).Uint("student_id", student.ID).Msg("failed to store imported submission")
			result.skip(folder.name, SkipStoreFailed)
			continue
		}

		imported[student.ID] = struct{}{}
		if created {
			result.Summary.Created++
		} else {
			result.Summary.Updated++
		}

		if job := gradingJobFor(ctx, submission, refs, assignment); job != nil {
			result.Jobs = append(result.Jobs, *job)
		}
	}

	result.Summary.Total = result.Summary.Created + result.Summary.Updated

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Int("created", result.Summary.Created).
		Int("updated", result.Summary.Updated).
		Int("skipped", len(result.Summary.Skipped)).
		Msg("archive imported")

	return result, nil
}

func (r *ImportResult) skip(folder, reason string) {
	r.Summary.Skipped = append(r.Summary.Skipped, dto.ImportSkip{Folder: folder, Reason: reason})
}

// uploadFolder stores every acceptable image in the folder. Files that are not
// real images or exceed the size limit are left out; storage failures abort.
func (s *bulkImportService) uploadFolder(ctx context.Context, folder archiveFolder, logger zerolog.Logger) ([]string, error) {
	destination := folder.name
	if s.folder != "" {
		destination = s.folder + "/" + folder.name
	}

	refs := make([]string, 0, len(folder.files))
	for _, file := range folder.files {
		if s.maxImage > 0 && file.UncompressedSize64 > uint64(s.maxImage) {
			logger.Warn().Str("file", file.Name).Msg("archive image exceeds size limit, skipped")
			continue
		}

		ref, err := s.uploadEntry(ctx, destination, file)
		if err != nil {
			if errors.Is(err, ErrUploadTypeNotAllowed) || errors.Is(err, ErrUploadTooLarge) {
				logger.Warn().Err(err).Str("file", file.Name).Msg("archive entry rejected")
				continue
			}
			return nil, err
		}
		refs = append(refs, ref)
	}

	return refs, nil
}

func (s *bulkImportService) uploadEntry(ctx context.Context, destination string, file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer rc.Close()

	return s.images.Upload(ctx, destination, path.Base(entryName(file)), rc)
}

func (s *bulkImportService) upsert(ctx context.Context, assignmentID, studentID uint, refs []string) (models.Submission, bool, error) {
	now := s.now()

	existing, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	switch {
	case err == nil:
		existing.Content = ZipSubmissionContent
		existing.SetFileURLs(refs)
		existing.SubmittedAt = now
		if err := s.submissions.Resubmit(ctx, &existing); err != nil {
			return models.Submission{}, false, err
		}
		return existing, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		submission := models.Submission{
			AssignmentID: assignmentID,
			StudentID:    studentID,
			Content:      ZipSubmissionContent,
			SubmittedAt:  now,
		}
		submission.SetFileURLs(refs)
		if err := s.submissions.Create(ctx, &submission); err != nil {
			return models.Submission{}, false, err
		}
		return submission, true, nil
	default:
		return models.Submission{}, false, err
	}
}

// groupArchive collects image entries per student folder, sorted by folder
// and file name. A single wrapping root directory is descended into when it
// holds nested folders.
func groupArchive(files []*zip.File) []archiveFolder {
	type entry struct {
		parts []string
		file  *zip.File
		dir   bool
	}

	entries := make([]entry, 0, len(files))
	topDirs := make(map[string]struct{})
	topFiles := 0
	deep := false

	for _, file := range files {
		parts := splitEntry(entryName(file))
		if len(parts) == 0 {
			continue
		}
		dir := file.FileInfo().IsDir()
		entries = append(entries, entry{parts: parts, file: file, dir: dir})

		if len(parts) == 1 && !dir {
			topFiles++
		} else {
			topDirs[parts[0]] = struct{}{}
		}
		if len(parts) >= 3 {
			deep = true
		}
	}

	strip := len(topDirs) == 1 && topFiles == 0 && deep

	byName := make(map[string]*archiveFolder)
	for _, e := range entries {
		parts := e.parts
		if strip {
			parts = parts[1:]
		}
		if len(parts) == 0 || (len(parts) == 1 && !e.dir) {
			continue
		}

		folder, ok := byName[parts[0]]
		if !ok {
			folder = &archiveFolder{name: parts[0]}
			byName[parts[0]] = folder
		}

		if len(parts) == 2 && !e.dir && isImportImage(parts[1]) {
			folder.files = append(folder.files, e.file)
		}
	}

	folders := make([]archiveFolder, 0, len(byName))
	for _, folder := range byName {
		sort.Slice(folder.files, func(i, j int) bool {
			return entryName(folder.files[i]) < entryName(folder.files[j])
		})
		folders = append(folders, *folder)
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].name < folders[j].name })

	return folders
}

// entryName returns the entry path as UTF-8. Legacy archives without the
// UTF-8 flag are decoded as code page 437.
func entryName(file *zip.File) string {
	name := file.Name
	if file.NonUTF8 && !utf8.ValidString(name) {
		if decoded, err := charmap.CodePage437.NewDecoder().String(name); err == nil {
			name = decoded
		}
	}
	return strings.ReplaceAll(name, "\\", "/")
}

func splitEntry(name string) []string {
	raw := strings.Split(strings.Trim(name, "/"), "/")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		switch {
		case part == "" || part == ".":
			continue
		case part == ".." || part == "__MACOSX" || strings.HasPrefix(part, "."):
			return nil
		}
		parts = append(parts, part)
	}
	return parts
}

func isImportImage(name string) bool {
	_, ok := importImageExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

func buildRoster(students []models.User) map[string][]models.User {
	roster := make(map[string][]models.User, len(students))
	for _, student := range students {
		key := normalizeName(student.Name)
		if key == "" {
			continue
		}
		roster[key] = append(roster[key], student)
	}
	return roster
}

// normalizeName folds accents, collapses whitespace and lowercases.
func normalizeName(name string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}
