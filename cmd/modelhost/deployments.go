package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cuemby/modelhost/pkg/client"
	"github.com/cuemby/modelhost/pkg/notify"
	"github.com/cuemby/modelhost/pkg/types"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy FILE",
	Short: "Upload a model archive and start its deployment",
	Long: `Upload a packaged model (a .tar.gz holding the serving code and its
requirements.txt) and start a deployment.

Examples:
  # Deploy and return once the upload is acknowledged
  modelhost deploy ./sentiment.tar.gz --name "Sentiment v2" --user alice

  # Deploy and follow the status until the endpoint is ready or failed
  modelhost deploy ./sentiment.tar.gz --name sentiment --user alice --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

var statusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "Show a deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient(cmd).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printDeployment(os.Stdout, d)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		list, err := newClient(cmd).List(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No deployments")
			return nil
		}
		printDeploymentTable(os.Stdout, list)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a deployment and tear down its resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Deployment %s deleted\n", args[0])
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream status notifications for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching deployments of %s. Press Ctrl+C to stop.\n", userID)
		return newClient(cmd).Watch(ctx, userID, func(m notify.Message) {
			printNotification(os.Stdout, m)
		})
	},
}

func init() {
	deployCmd.Flags().String("name", "", "Model name; whitespace is stripped (defaults to the file name)")
	deployCmd.Flags().String("user", envOr("MODELHOST_USER", ""), "Owner of the deployment")
	deployCmd.Flags().Bool("wait", false, "Follow notifications until the deployment finishes")
	deployCmd.Flags().Duration("timeout", 90*time.Minute, "Maximum time to wait with --wait")

	listCmd.Flags().String("user", "", "Only list deployments of this user")

	watchCmd.Flags().String("user", envOr("MODELHOST_USER", ""), "User to watch")
	_ = watchCmd.MarkFlagRequired("user")
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.NewClient(server)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	path := args[0]
	name, _ := cmd.Flags().GetString("name")
	userID, _ := cmd.Flags().GetString("user")
	wait, _ := cmd.Flags().GetBool("wait")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	if name == "" {
		name = modelNameFromPath(path)
	}
	if err := types.ValidateName(types.NormalizeName(name)); err != nil {
		return err
	}

	c := newClient(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !wait {
		res, err := c.Upload(ctx, path, name, userID)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n  Deployment ID: %s\n", res.Message, res.ID)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Messages for a user without a session are dropped, so subscribe
	// before uploading.
	sub, err := c.Subscribe(ctx, userID)
	if err != nil {
		return err
	}
	stopClose := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stopClose()
	defer sub.Close()

	res, err := c.Upload(ctx, path, name, userID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s\n  Deployment ID: %s\n", res.Message, res.ID)

	for {
		m, err := sub.Next()
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return fmt.Errorf("stopped waiting for %s: %w", res.ID, err)
		}
		d := m.Deployment
		if d == nil || d.ID != res.ID {
			continue
		}
		printNotification(os.Stdout, m)
		if d.Status == types.StatusFailed {
			return fmt.Errorf("deployment %s failed: %s", d.ID, d.FailureReason)
		}
		if d.Status.IsTerminal() {
			return nil
		}
	}
}

func modelNameFromPath(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

func printDeployment(w io.Writer, d *types.Deployment) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", d.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", d.Name)
	fmt.Fprintf(tw, "User:\t%s\n", d.UserID)
	fmt.Fprintf(tw, "Status:\t%s\n", d.Status)
	if d.FailureReason != "" {
		fmt.Fprintf(tw, "Reason:\t%s\n", d.FailureReason)
	}
	if d.BucketName != "" {
		fmt.Fprintf(tw, "Artifact:\ts3://%s/%s\n", d.BucketName, d.BucketObjectKey)
	}
	if d.ImageTag != "" {
		fmt.Fprintf(tw, "Image:\t%s:%s\n", d.RegistryRepoName, d.ImageTag)
	}
	if d.EndpointName != "" {
		fmt.Fprintf(tw, "Endpoint:\t%s\n", d.EndpointName)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", d.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Updated:\t%s\n", d.UpdatedAt.Format(time.RFC3339))
	_ = tw.Flush()
}

func printDeploymentTable(w io.Writer, list []*types.Deployment) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUSER\tSTATUS\tENDPOINT\tUPDATED")
	for _, d := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Name, d.UserID, d.Status, d.EndpointName, d.UpdatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func printNotification(w io.Writer, m notify.Message) {
	d := m.Deployment
	if d == nil {
		return
	}
	line := fmt.Sprintf("%s  %s  %s  %s", m.Timestamp.Format(time.RFC3339), d.ID, d.Name, d.Status)
	if d.FailureReason != "" {
		line += "  " + d.FailureReason
	}
	fmt.Fprintln(w, line)
}
