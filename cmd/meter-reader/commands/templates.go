package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ironsheep/meter-reader/internal/templates"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage positional and value templates",
	}
	cmd.AddCommand(templatesBuildCmd(), templatesSaveCmd(), templatesListCmd())
	return cmd
}

func templatesBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Slice the last normalized image into positional templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			slices, err := newPipeline(cmd.Context()).BuildPositionTemplates()
			if err != nil {
				return err
			}
			fmt.Printf("Built %d positional templates in %s\n", len(slices), rt.PositionTemplateDir())
			return nil
		},
	}
}

func templatesSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <digit> <slot>",
		Short: "Use the positional template of a slot as the reference for a digit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid slot %q: %w", args[1], err)
			}
			if err := newPipeline(cmd.Context()).SaveValueTemplate(args[0], slot); err != nil {
				return err
			}
			fmt.Printf("Saved slot %d as value template %s\n", slot, args[0])
			return nil
		},
	}
}

func templatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the template inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := templates.NewLibrary(rt.ValueTemplateDir())
			return printJSON(map[string]interface{}{
				"positions_dir":      rt.PositionTemplateDir(),
				"position_templates": templates.CountPositionTemplates(rt.PositionTemplateDir()),
				"values_dir":         lib.Dir(),
				"value_templates":    lib.Labels(),
			})
		},
	}
}
