package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"costtrack/pkg/orchestration"
	"costtrack/pkg/persistence"
)

var (
	orchAgent      string
	orchPattern    string
	orchRole       string
	orchTPType     string
	orchTPTitle    string
	orchTPAgents   []string
	orchTPScore    float64
	orchCollabDays int
)

var orchCmd = &cobra.Command{
	Use:   "orch",
	Short: "Manage project orchestration and the agent journey",
}

var orchCreateCmd = &cobra.Command{
	Use:   "create <project-id>",
	Short: "Provision orchestration for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrchCreate,
}

var orchStatusCmd = &cobra.Command{
	Use:   "status <project-id>",
	Short: "Show the orchestration root and its journey stages",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrchStatus,
}

var orchTransitionCmd = &cobra.Command{
	Use:   "transition <orchestration-id> <status>",
	Short: "Move the orchestration to a new lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrchTransition,
}

var orchAdvanceCmd = &cobra.Command{
	Use:   "advance <orchestration-id>",
	Short: "Complete the current stage and activate the next",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrchAdvance,
}

var orchAssignCmd = &cobra.Command{
	Use:   "assign <orchestration-id> <agent-id>",
	Short: "Assign an agent to the orchestration",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrchAssign,
}

var orchTouchpointCmd = &cobra.Command{
	Use:   "touchpoint <orchestration-id>",
	Short: "Log a journey touchpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrchTouchpoint,
}

var orchCollabCmd = &cobra.Command{
	Use:   "collab <orchestration-id>",
	Short: "Recompute pairwise collaboration metrics from touchpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrchCollab,
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.AddCommand(orchCmd)
	orchCmd.AddCommand(orchCreateCmd)
	orchCmd.AddCommand(orchStatusCmd)
	orchCmd.AddCommand(orchTransitionCmd)
	orchCmd.AddCommand(orchAdvanceCmd)
	orchCmd.AddCommand(orchAssignCmd)
	orchCmd.AddCommand(orchTouchpointCmd)
	orchCmd.AddCommand(orchCollabCmd)

	orchCreateCmd.Flags().StringVar(&orchAgent, "agent", "", "primary agent ID")
	orchCreateCmd.Flags().StringVar(&orchPattern, "pattern", persistence.PatternHierarchical, "coordination pattern")

	orchAssignCmd.Flags().StringVar(&orchRole, "role", persistence.RoleContributor, "agent role")

	orchTouchpointCmd.Flags().StringVar(&orchTPType, "type", persistence.TouchpointStatusUpdate, "touchpoint type")
	orchTouchpointCmd.Flags().StringVar(&orchTPTitle, "title", "", "touchpoint title (required)")
	orchTouchpointCmd.Flags().StringSliceVar(&orchTPAgents, "agents", nil, "linked agent IDs")
	orchTouchpointCmd.Flags().Float64Var(&orchTPScore, "score", -1, "productivity score [0,1]")
	_ = orchTouchpointCmd.MarkFlagRequired("title")

	orchCollabCmd.Flags().IntVar(&orchCollabDays, "days", 7, "window length ending now")
}

func orchService() (*orchestration.Service, func(), error) {
	_, cleanup, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}
	return orchestration.NewService(persistence.GetDB()), cleanup, nil
}

func runOrchCreate(_ *cobra.Command, args []string) error {
	svc, cleanup, err := orchService()
	if err != nil {
		return err
	}
	defer cleanup()

	orch, err := svc.Create(args[0], orchAgent, orchPattern)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(orch)
	}
	fmt.Printf("orchestration %s created for %s (pattern %s, stage %s)\n", orch.ID, orch.ProjectID, orch.CoordinationPattern, orch.CurrentStage)
	return nil
}

func runOrchStatus(_ *cobra.Command, args []string) error {
	svc, cleanup, err := orchService()
	if err != nil {
		return err
	}
	defer cleanup()

	orch, err := svc.GetByProject(args[0])
	if err != nil {
		return err
	}
	stages, err := svc.Stages(orch.ID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]interface{}{"orchestration": orch, "stages": stages})
	}
	fmt.Printf("orchestration %s [%s] project=%s pattern=%s stage=%s\n",
		orch.ID, orch.Status, orch.ProjectID, orch.CoordinationPattern, orch.CurrentStage)
	for _, st := range stages {
		marker := " "
		if st.StageName == orch.CurrentStage {
			marker = "*"
		}
		fmt.Printf("  %s %-12s %s\n", marker, st.StageName, st.Status)
	}
	return nil
}

func runOrchTransition(_ *cobra.Command, args []string) error {
	svc, cleanup, err := orchService()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Transition(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("orchestration %s is now %s\n", args[0], args[1])
	return nil
}

func runOrchAdvance(_ *cobra.Command, args []string) error {
	svc, cleanup, err := orchService()
	if err != nil {
		return err
	}
	defer cleanup()

	next, err := svc.AdvanceStage(args[0])
	if err != nil {
		return err
	}
	if next == nil {
		fmt.Println("final stage completed; journey finished")
		return nil
	}
	fmt.Printf("advanced to stage %s\n", next.StageName)
	return nil
}

func runOrchAssign(_ *cobra.Command, args []string) error {
	svc, cleanup, err := orchService()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Assign(args[0], args[1], orchRole); err != nil {
		return err
	}
	fmt.Printf("agent %s assigned as %s\n", args[1], orchRole)
	return nil
}

func runOrchTouchpoint(_ *cobra.Command, args []string) error {
	svc, cleanup, err := orchService()
	if err != nil {
		return err
	}
	defer cleanup()

	tp := &persistence.Touchpoint{
		OrchestrationID: args[0],
		TouchpointType:  orchTPType,
		Title:           orchTPTitle,
	}
	if len(orchTPAgents) > 0 {
		linked, err := json.Marshal(orchTPAgents)
		if err != nil {
			return err
		}
		tp.LinkedAgents = string(linked)
	}
	if orchTPScore >= 0 {
		score := orchTPScore
		tp.ProductivityScore = &score
	}

	if err := svc.LogTouchpoint(tp); err != nil {
		return err
	}
	fmt.Printf("touchpoint %s logged\n", tp.ID)
	return nil
}

func runOrchCollab(_ *cobra.Command, args []string) error {
	svc, cleanup, err := orchService()
	if err != nil {
		return err
	}
	defer cleanup()

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.AddDate(0, 0, -orchCollabDays)
	pairs, err := svc.RecomputeCollaboration(args[0], windowStart, windowEnd)
	if err != nil {
		return err
	}
	fmt.Printf("recomputed %d collaboration pairs over the last %d days\n", pairs, orchCollabDays)
	return nil
}
