package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage the student roster",
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered students",
	Args:  cobra.NoArgs,
	RunE:  runStudentsList,
}

var studentsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a student from one or more photos",
	Long: `Register a student, or replace the embedding of an existing one.
Every photo is embedded; photos without a detectable face are skipped.

Example:
  face-attendance students add --name "Alice" --image alice1.jpg --image alice2.jpg`,
	Args: cobra.NoArgs,
	RunE: runStudentsAdd,
}

var studentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a student and their attendance records",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsDelete,
}

var studentsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register every student found in a directory",
	Long: `Register students in bulk. The directory holds one sub-directory per
student, named after the student, containing .jpg, .jpeg or .png photos.
Students that fail to register are reported and skipped.`,
	Args: cobra.NoArgs,
	RunE: runStudentsSeed,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsListCmd, studentsAddCmd, studentsDeleteCmd, studentsSeedCmd)

	studentsListCmd.Flags().Bool("json", false, "Output as JSON")

	studentsAddCmd.Flags().String("name", "", "Student name (required)")
	studentsAddCmd.Flags().StringSlice("image", nil, "Photo of the student (repeatable)")
	_ = studentsAddCmd.MarkFlagRequired("name")
	_ = studentsAddCmd.MarkFlagRequired("image")

	studentsSeedCmd.Flags().String("dir", "students", "Directory with one sub-directory per student")
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	students, err := a.service.ListStudents(ctx)
	if err != nil {
		return describeError(err)
	}

	if mustGetBool(cmd, "json") {
		type studentJSON struct {
			ID        int64  `json:"id"`
			Name      string `json:"name"`
			HasImage  bool   `json:"has_image"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]studentJSON, len(students))
		for i, s := range students {
			out[i] = studentJSON{
				ID:        s.ID,
				Name:      s.Name,
				HasImage:  s.ImageRef != "",
				CreatedAt: s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			}
		}
		return outputJSON(out)
	}

	if len(students) == 0 {
		fmt.Println("No students registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tIMAGE\tREGISTERED")
	fmt.Fprintln(w, "--\t----\t-----\t----------")
	for _, s := range students {
		image := "no"
		if s.ImageRef != "" {
			image = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Name, image, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d students\n", len(students))
	return nil
}

// readUploads loads photos from disk in the given order.
func readUploads(paths []string) ([]attendance.Upload, error) {
	uploads := make([]attendance.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		uploads = append(uploads, attendance.Upload{Filename: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

func runStudentsAdd(cmd *cobra.Command, args []string) error {
	name := mustGetString(cmd, "name")
	uploads, err := readUploads(mustGetStringSlice(cmd, "image"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.service.Register(ctx, name, uploads)
	if err != nil {
		return describeError(err)
	}

	action := "Updated"
	if reg.Created {
		action = "Added"
	}
	fmt.Printf("%s student '%s' (ID %d) using %d image(s)", action, reg.Student.Name, reg.Student.ID, reg.ImagesUsed)
	if reg.ImagesSkipped > 0 {
		fmt.Printf(", %d skipped", reg.ImagesSkipped)
	}
	fmt.Println()
	return nil
}

func runStudentsDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid student id %q", args[0])
	}

	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.DeleteStudent(ctx, id); err != nil {
		return describeError(err)
	}
	fmt.Printf("Deleted student %d\n", id)
	return nil
}

// seedStudent is one student directory found by collectSeedStudents.
type seedStudent struct {
	Name   string
	Images []string
}

func isSeedImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext != "" && slices.Contains(strings.Split(constants.SeedImageExtensions, ","), ext)
}

// collectSeedStudents lists the student sub-directories of dir, sorted by
// name. Directories without any photo are returned with no images so that
// the caller can report them.
func collectSeedStudents(dir string) ([]seedStudent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var students []seedStudent
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		studentDir := filepath.Join(dir, entry.Name())
		files, err := os.ReadDir(studentDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", studentDir, err)
		}
		s := seedStudent{Name: entry.Name()}
		for _, f := range files {
			if f.IsDir() || !isSeedImage(f.Name()) {
				continue
			}
			s.Images = append(s.Images, filepath.Join(studentDir, f.Name()))
		}
		sort.Strings(s.Images)
		students = append(students, s)
	}

	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func runStudentsSeed(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	students, err := collectSeedStudents(dir)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		fmt.Printf("No student directories found in %s\n", dir)
		return nil
	}

	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(students),
		progressbar.OptionSetDescription("Registering students"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var failures []string
	registered := 0
	for _, s := range students {
		if err := seedOne(ctx, a.service, s); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name, err))
		} else {
			registered++
		}
		bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Registered %d of %d students\n", registered, len(students))
	if len(failures) > 0 {
		fmt.Printf("\nFailed (%d):\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  %s\n", f)
		}
	}
	return nil
}

func seedOne(ctx context.Context, service *attendance.Service, s seedStudent) error {
	if len(s.Images) == 0 {
		return errors.New("no .jpg, .jpeg or .png photos")
	}
	uploads, err := readUploads(s.Images)
	if err != nil {
		return err
	}
	if _, err := service.Register(ctx, s.Name, uploads); err != nil {
		return describeError(err)
	}
	return nil
}
