package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lowdata/blockd/internal/controller"
	"github.com/lowdata/blockd/internal/rule"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage blocking rules",
	Long: "List, add, remove and toggle blocking rules. Changes persist immediately;\n" +
		"they reach the packet filter only while enforcement is on.",
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules",
	RunE:  runRuleList,
}

var ruleShowCmd = &cobra.Command{
	Use:   "show <rule>",
	Short: "Show one rule in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleShow,
}

var (
	addName        string
	addPort        int
	addRange       string
	addService     string
	addApp         string
	addDisplayName string
	addTransport   string
	addDescription string
)

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule",
	Long: "Add a blocking rule. Exactly one of --port, --range, --service or --app\n" +
		"selects the rule kind:\n\n" +
		"  blockd rule add --name \"Block SMB\" --port 445\n" +
		"  blockd rule add --name \"Block FTP\" --range 20:21\n" +
		"  blockd rule add --name \"Block AFP\" --service \"548/tcp,427/udp\"\n" +
		"  blockd rule add --name \"Block Dropbox\" --app com.dropbox.Dropbox",
	RunE: runRuleAdd,
}

var ruleRemoveCmd = &cobra.Command{
	Use:   "remove <rule>",
	Short: "Remove a user-added rule",
	Long:  "Remove a rule by id or name. Built-in rules can only be disabled.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleRemove,
}

var ruleEnableCmd = &cobra.Command{
	Use:   "enable <rule>",
	Short: "Enable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleEnable,
}

var ruleDisableCmd = &cobra.Command{
	Use:   "disable <rule>",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleDisable,
}

func init() {
	ruleAddCmd.Flags().StringVar(&addName, "name", "", "rule name (required)")
	ruleAddCmd.Flags().IntVar(&addPort, "port", 0, "single port to block")
	ruleAddCmd.Flags().StringVar(&addRange, "range", "", "inclusive port range start:end")
	ruleAddCmd.Flags().StringVar(&addService, "service", "", "service ports, e.g. \"445/tcp,139/tcp\"")
	ruleAddCmd.Flags().StringVar(&addApp, "app", "", "application bundle identifier")
	ruleAddCmd.Flags().StringVar(&addDisplayName, "display-name", "", "application display name (with --app)")
	ruleAddCmd.Flags().StringVar(&addTransport, "transport", "tcp", "transport for --port and --range: tcp, udp or both")
	ruleAddCmd.Flags().StringVar(&addDescription, "description", "", "free-text description")

	ruleCmd.AddCommand(ruleListCmd, ruleShowCmd, ruleAddCmd, ruleRemoveCmd, ruleEnableCmd, ruleDisableCmd)
	rootCmd.AddCommand(ruleCmd)
}

func runRuleList(cmd *cobra.Command, _ []string) error {
	ctrl, cleanup, err := openController(cmd.Context(), setupLogger(logLevel))
	if err != nil {
		return fmt.Errorf("blockd rule list: %w", err)
	}
	defer cleanup()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-14s %-20s %-12s %-28s %-8s %s\n", "ID", "NAME", "KIND", "DETAIL", "ENABLED", "SOURCE")
	for _, r := range ctrl.Rules() {
		fmt.Fprintf(w, "%-14.14s %-20.20s %-12s %-28.28s %-8s %s\n",
			r.ID, r.Name, r.Kind, ruleDetail(r), yesNo(r.Enabled), ruleSource(r))
	}
	return nil
}

func runRuleShow(cmd *cobra.Command, args []string) error {
	ctrl, cleanup, err := openController(cmd.Context(), setupLogger(logLevel))
	if err != nil {
		return fmt.Errorf("blockd rule show: %w", err)
	}
	defer cleanup()

	r, err := findRule(ctrl, args[0])
	if err != nil {
		return fmt.Errorf("blockd rule show: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "ID:          %s\n", r.ID)
	fmt.Fprintf(w, "Name:        %s\n", r.Name)
	fmt.Fprintf(w, "Kind:        %s\n", r.Kind)
	fmt.Fprintf(w, "Detail:      %s\n", ruleDetail(r))
	fmt.Fprintf(w, "Enabled:     %s\n", yesNo(r.Enabled))
	fmt.Fprintf(w, "Source:      %s\n", ruleSource(r))
	fmt.Fprintf(w, "Created:     %s\n", r.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if r.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", r.Description)
	}
	return nil
}

func runRuleAdd(cmd *cobra.Command, _ []string) error {
	r, err := buildRuleFromFlags()
	if err != nil {
		return fmt.Errorf("blockd rule add: %w", err)
	}

	ctrl, cleanup, err := openController(cmd.Context(), setupLogger(logLevel))
	if err != nil {
		return fmt.Errorf("blockd rule add: %w", err)
	}
	defer cleanup()

	if err := ctrl.Add(cmd.Context(), r); err != nil {
		return fmt.Errorf("blockd rule add: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rule added: %s\n", r.ID)
	reportCycle(cmd.OutOrStdout(), ctrl)
	return nil
}

func runRuleRemove(cmd *cobra.Command, args []string) error {
	ctrl, cleanup, err := openController(cmd.Context(), setupLogger(logLevel))
	if err != nil {
		return fmt.Errorf("blockd rule remove: %w", err)
	}
	defer cleanup()

	r, err := findRule(ctrl, args[0])
	if err != nil {
		return fmt.Errorf("blockd rule remove: %w", err)
	}
	if err := ctrl.Remove(cmd.Context(), r.ID); err != nil {
		return fmt.Errorf("blockd rule remove: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rule removed: %s\n", r.Name)
	reportCycle(cmd.OutOrStdout(), ctrl)
	return nil
}

func runRuleEnable(cmd *cobra.Command, args []string) error {
	return toggleRule(cmd, args[0], true)
}

func runRuleDisable(cmd *cobra.Command, args []string) error {
	return toggleRule(cmd, args[0], false)
}

func toggleRule(cmd *cobra.Command, arg string, enabled bool) error {
	verb := "disable"
	if enabled {
		verb = "enable"
	}

	ctrl, cleanup, err := openController(cmd.Context(), setupLogger(logLevel))
	if err != nil {
		return fmt.Errorf("blockd rule %s: %w", verb, err)
	}
	defer cleanup()

	r, err := findRule(ctrl, arg)
	if err != nil {
		return fmt.Errorf("blockd rule %s: %w", verb, err)
	}
	if err := ctrl.SetRuleEnabled(cmd.Context(), r.ID, enabled); err != nil {
		return fmt.Errorf("blockd rule %s: %w", verb, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rule %s: %s\n", verb+"d", r.Name)
	reportCycle(cmd.OutOrStdout(), ctrl)
	return nil
}

// buildRuleFromFlags turns the rule add flags into a validated rule.
func buildRuleFromFlags() (rule.Rule, error) {
	if addName == "" {
		return rule.Rule{}, fmt.Errorf("--name is required")
	}

	kinds := 0
	if addPort != 0 {
		kinds++
	}
	if addRange != "" {
		kinds++
	}
	if addService != "" {
		kinds++
	}
	if addApp != "" {
		kinds++
	}
	if kinds != 1 {
		return rule.Rule{}, fmt.Errorf("exactly one of --port, --range, --service or --app must be given")
	}

	transport := rule.Transport(addTransport)
	if !transport.Valid() {
		return rule.Rule{}, fmt.Errorf("invalid transport %q, want tcp, udp or both", addTransport)
	}

	var r rule.Rule
	switch {
	case addPort != 0:
		r = rule.NewPort(addName, addPort, transport)
	case addRange != "":
		start, end, err := parsePortRange(addRange)
		if err != nil {
			return rule.Rule{}, err
		}
		r = rule.NewPortRange(addName, start, end, transport)
	case addService != "":
		ports, err := parseServicePorts(addService)
		if err != nil {
			return rule.Rule{}, err
		}
		r = rule.NewService(addName, ports)
	default:
		display := addDisplayName
		if display == "" {
			display = addName
		}
		r = rule.NewApplication(addName, addApp, display)
	}
	r.Description = addDescription

	if err := r.Validate(); err != nil {
		return rule.Rule{}, err
	}
	return r, nil
}

// parsePortRange parses an inclusive "start:end" range.
func parsePortRange(spec string) (start, end int, err error) {
	startStr, endStr, found := strings.Cut(spec, ":")
	if !found {
		return 0, 0, fmt.Errorf("invalid range %q, want start:end", spec)
	}
	if start, err = strconv.Atoi(startStr); err != nil {
		return 0, 0, fmt.Errorf("invalid range start %q", startStr)
	}
	if end, err = strconv.Atoi(endStr); err != nil {
		return 0, 0, fmt.Errorf("invalid range end %q", endStr)
	}
	return start, end, nil
}

// parseServicePorts parses a comma-separated list of "port/transport"
// entries. The transport defaults to tcp when omitted.
func parseServicePorts(spec string) ([]rule.ServicePort, error) {
	parts := strings.Split(spec, ",")
	ports := make([]rule.ServicePort, 0, len(parts))
	for _, part := range parts {
		sp, err := parsePortSpec(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ports = append(ports, sp)
	}
	return ports, nil
}

func parsePortSpec(spec string) (rule.ServicePort, error) {
	numStr, trStr, found := strings.Cut(spec, "/")
	transport := rule.TCP
	if found {
		transport = rule.Transport(trStr)
		if !transport.Valid() {
			return rule.ServicePort{}, fmt.Errorf("invalid transport %q in %q", trStr, spec)
		}
	}
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return rule.ServicePort{}, fmt.Errorf("invalid port %q in %q", numStr, spec)
	}
	return rule.ServicePort{Port: n, Transport: transport}, nil
}

// findRule resolves a rule by exact id, unique id prefix, or exact name.
func findRule(ctrl *controller.Controller, arg string) (rule.Rule, error) {
	rules := ctrl.Rules()

	var matches []rule.Rule
	for _, r := range rules {
		if r.ID == arg {
			return r, nil
		}
		if strings.HasPrefix(r.ID, arg) || r.Name == arg {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return rule.Rule{}, fmt.Errorf("no rule matches %q", arg)
	default:
		return rule.Rule{}, fmt.Errorf("%q is ambiguous, matches %d rules", arg, len(matches))
	}
}

// ruleDetail renders the variant payload for table display.
func ruleDetail(r rule.Rule) string {
	switch r.Kind {
	case rule.KindPort:
		return fmt.Sprintf("%d/%s", r.Port.Number, r.Port.Transport)
	case rule.KindPortRange:
		return fmt.Sprintf("%d:%d/%s", r.Range.Start, r.Range.End, r.Range.Transport)
	case rule.KindService:
		parts := make([]string, len(r.Service.Ports))
		for i, p := range r.Service.Ports {
			parts[i] = fmt.Sprintf("%d/%s", p.Port, p.Transport)
		}
		return strings.Join(parts, ", ")
	case rule.KindApplication:
		return r.App.BundleID
	}
	return ""
}

func ruleSource(r rule.Rule) string {
	if r.UserAdded {
		return "user"
	}
	return "built-in"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
