package cmd

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/notesync"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "note commands, run against the server in the saved context",
}

func init() {
	noteCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	noteCmd.AddCommand(createNoteCmd())
	noteCmd.AddCommand(getNoteCmd())
	noteCmd.AddCommand(listNoteCmd())
	noteCmd.AddCommand(updateNoteCmd())
	noteCmd.AddCommand(setTagsCmd())
	noteCmd.AddCommand(deleteNoteCmd())
	noteCmd.AddCommand(attachCmd())
	noteCmd.AddCommand(listAttachmentsCmd())
	noteCmd.AddCommand(signedURLCmd())
}

func printNotes(notes ...*notesync.Note) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Title", "Tags", "Status", "Public", "Updated"})
	for _, n := range notes {
		table.Append([]string{
			n.ID,
			n.Title,
			strings.Join(n.Tags, ", "),
			n.Status,
			strconv.FormatBool(n.IsPublic),
			n.UpdatedAt.Format(time.RFC3339),
		})
	}
	table.Render()

	for _, n := range notes {
		for _, w := range n.Warnings {
			color.Yellow("warning: %s", w)
		}
	}
}

func createNoteCmd() *cobra.Command {
	var title string
	var content string
	var tags []string

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a note",
		Example: "notesync note create -t <title> -c <content> --tag q1",
		Run: func(cmd *cobra.Command, args []string) {
			client, ok := apiClient()
			if !ok {
				return
			}

			note, err := client.CreateNote(context.Background(), title, content, tags)
			if err != nil {
				logrus.Error(err)
				return
			}
			printNotes(note)
		},
	}

	command.Flags().StringVarP(&title, "title", "t", "", "note title")
	command.Flags().StringVarP(&content, "content", "c", "", "note content")
	command.Flags().StringArrayVar(&tags, "tag", nil, "tag, repeatable")

	return command
}

func getNoteCmd() *cobra.Command {
	var noteID string

	command := &cobra.Command{
		Use:   "get",
		Short: "get a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"note-id"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			note, err := client.GetNote(context.Background(), noteID)
			if err != nil {
				logrus.Error(err)
				return
			}
			printNotes(note)
			cmd.Println(note.Content)
		},
	}

	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")

	return command
}

func listNoteCmd() *cobra.Command {
	var cursor string
	var limit int
	var all bool

	command := &cobra.Command{
		Use:   "list",
		Short: "list notes, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			client, ok := apiClient()
			if !ok {
				return
			}

			var notes []*notesync.Note
			for {
				page, err := client.ListNotes(context.Background(), cursor, limit)
				if err != nil {
					logrus.Error(err)
					return
				}
				notes = append(notes, page.Notes...)
				cursor = page.NextCursor

				if !all || !page.HasMore {
					break
				}
			}

			printNotes(notes...)
			if cursor != "" && !all {
				cmd.Printf("next cursor: %s\n", cursor)
			}
		},
	}

	command.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	command.Flags().IntVarP(&limit, "limit", "l", 0, "page size")
	command.Flags().BoolVar(&all, "all", false, "follow cursors until the last page")

	return command
}

func updateNoteCmd() *cobra.Command {
	var noteID string
	var title string
	var content string
	var status string
	var public bool
	var cause string

	command := &cobra.Command{
		Use:   "update",
		Short: "update a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"note-id"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			fields := make(map[string]any)
			if cmd.Flag("title").Changed {
				fields["title"] = title
			}
			if cmd.Flag("content").Changed {
				fields["content"] = content
			}
			if cmd.Flag("status").Changed {
				fields["status"] = status
			}
			if cmd.Flag("public").Changed {
				fields["isPublic"] = public
			}
			if cmd.Flag("cause").Changed {
				fields["cause"] = cause
			}
			if len(fields) == 0 {
				color.Yellow("nothing to update")
				return
			}

			note, err := client.UpdateNote(context.Background(), noteID, fields)
			if err != nil {
				logrus.Error(err)
				return
			}
			printNotes(note)
		},
	}

	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")
	command.Flags().StringVarP(&title, "title", "t", "", "note title")
	command.Flags().StringVarP(&content, "content", "c", "", "note content")
	command.Flags().StringVarP(&status, "status", "s", "", "note status")
	command.Flags().BoolVar(&public, "public", false, "make the note public")
	command.Flags().StringVar(&cause, "cause", "", "revision cause")

	return command
}

func setTagsCmd() *cobra.Command {
	var noteID string
	var tags []string

	command := &cobra.Command{
		Use:   "tags",
		Short: "replace the tags of a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"note-id"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			names, err := client.SetTags(context.Background(), noteID, tags)
			if err != nil {
				logrus.Error(err)
				return
			}
			cmd.Println(strings.Join(names, ", "))
		},
	}

	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")
	command.Flags().StringArrayVar(&tags, "tag", nil, "tag, repeatable")

	return command
}

func deleteNoteCmd() *cobra.Command {
	var noteID string

	command := &cobra.Command{
		Use:   "delete",
		Short: "delete a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"note-id"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			if err := client.DeleteNote(context.Background(), noteID); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("deleted %s", noteID)
		},
	}

	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")

	return command
}

func attachCmd() *cobra.Command {
	var noteID string
	var path string
	var mimeType string

	command := &cobra.Command{
		Use:   "attach",
		Short: "upload a file to a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"note-id", "file"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			data, err := os.ReadFile(path)
			if err != nil {
				logrus.Error(err)
				return
			}
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(path))
			}

			att, err := client.UploadAttachment(context.Background(), noteID, path, mimeType, data)
			if err != nil {
				logrus.Error(err)
				return
			}
			printAttachments(att)
		},
	}

	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")
	command.Flags().StringVarP(&path, "file", "f", "", "file to upload")
	command.Flags().StringVarP(&mimeType, "mime", "m", "", "declared mime type, guessed from the extension by default")

	return command
}

func printAttachments(list ...*notesync.Attachment) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Size", "Mime", "Created"})
	for _, a := range list {
		table.Append([]string{a.ID, a.Name, strconv.FormatInt(a.Size, 10), a.Mime, a.CreatedAt.Format(time.RFC3339)})
	}
	table.Render()
}

func listAttachmentsCmd() *cobra.Command {
	var noteID string

	command := &cobra.Command{
		Use:   "attachments",
		Short: "list the attachments of a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"note-id"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			list, err := client.ListAttachments(context.Background(), noteID)
			if err != nil {
				logrus.Error(err)
				return
			}
			printAttachments(list...)
		},
	}

	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")

	return command
}

func signedURLCmd() *cobra.Command {
	var noteID string
	var fileID string
	var ttl time.Duration

	command := &cobra.Command{
		Use:   "url",
		Short: "mint a signed download url for an attachment",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"note-id", "file-id"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			signed, err := client.SignedURL(context.Background(), noteID, fileID, ttl)
			if err != nil {
				logrus.Error(err)
				return
			}
			cmd.Println(signed.URL)
			cmd.Printf("expires at %s\n", signed.ExpiresAt.Format(time.RFC3339))
		},
	}

	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")
	command.Flags().StringVarP(&fileID, "file-id", "f", "", "attachment id")
	command.Flags().DurationVar(&ttl, "ttl", 0, "url lifetime, server default when zero")

	return command
}
