package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/expresswash/jobsync"
)

var getCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Fetch one job from the remote service and reconcile it locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		sys, _, _, err := openSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer sys.Close()

		job, err := sys.Controller.FetchOne(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, job.Representation())
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List committed jobs from the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, _, err := openSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer sys.Close()

		filter, err := listFilter(cmd)
		if err != nil {
			return err
		}
		jobs, err := sys.Store.ListJobs(cmd.Context(), filter)
		if err != nil {
			return err
		}
		reps := make([]jobsync.Representation, len(jobs))
		for i, j := range jobs {
			reps[i] = j.Representation()
		}
		return printJSON(cmd, reps)
	},
}

var listUserCmd = &cobra.Command{
	Use:   "list-user <user-id>",
	Short: "Fetch a user's jobs from the remote service without storing them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("user", args[0])
		if err != nil {
			return err
		}
		sys, _, _, err := openSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer sys.Close()

		reps, err := sys.Controller.FetchForUser(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, reps)
	},
}

var listWasherCmd = &cobra.Command{
	Use:   "list-washer <washer-id>",
	Short: "Fetch a washer's jobs from the remote service without storing them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("washer", args[0])
		if err != nil {
			return err
		}
		sys, _, _, err := openSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer sys.Close()

		reps, err := sys.Controller.FetchForWasher(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, reps)
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign <job-id> <washer-id>",
	Short: "Assign a washer to a stored job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		washerID, err := parseID("washer", args[1])
		if err != nil {
			return err
		}
		sys, _, _, err := openSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer sys.Close()

		job, err := storedJob(cmd, sys, jobID)
		if err != nil {
			return err
		}
		updated, err := sys.Controller.AssignWasher(cmd.Context(), job, washerID)
		if err != nil {
			return err
		}
		return printJSON(cmd, updated.Representation())
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a stored job remotely and locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		sys, _, _, err := openSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer sys.Close()

		job, err := storedJob(cmd, sys, jobID)
		if err != nil {
			return err
		}
		msg, err := sys.Controller.Delete(cmd.Context(), job)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	listCmd.Flags().Int("client", 0, "only jobs for this client id")
	listCmd.Flags().Int("washer", 0, "only jobs for this washer id")
	listCmd.Flags().String("state", "", "only jobs in this state")
	listCmd.Flags().Int("limit", 0, "maximum number of jobs")

	rootCmd.AddCommand(getCmd, listCmd, listUserCmd, listWasherCmd, assignCmd, deleteCmd)
}

func parseID(kind, raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}

// storedJob loads a committed job, failing when it is not stored locally.
func storedJob(cmd *cobra.Command, sys *jobsync.System, jobID int) (*jobsync.Job, error) {
	job, err := sys.Store.GetJob(cmd.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d is not stored locally; run get first", jobID)
	}
	return job, nil
}

func listFilter(cmd *cobra.Command) (jobsync.JobFilter, error) {
	var filter jobsync.JobFilter
	flags := cmd.Flags()
	if flags.Changed("client") {
		id, _ := flags.GetInt("client")
		filter.ClientID = &id
	}
	if flags.Changed("washer") {
		id, _ := flags.GetInt("washer")
		filter.WasherID = &id
	}
	state, _ := flags.GetString("state")
	filter.State = jobsync.JobState(state)
	filter.Limit, _ = flags.GetInt("limit")
	return filter, nil
}
