package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"wellpath/internal/catalog"
	"wellpath/internal/model"
)

type bankQuestion struct {
	ID         string   `yaml:"id"`
	Text       string   `yaml:"text"`
	Kind       string   `yaml:"kind"`
	Options    []string `yaml:"options,omitempty"`
	AllowEmpty bool     `yaml:"allowEmpty,omitempty"`
}

type bankDump struct {
	Version string                    `yaml:"version"`
	Root    bankQuestion              `yaml:"root"`
	Sets    map[string][]bankQuestion `yaml:"sets"`
}

func toBankQuestion(q model.QuestionRecord) bankQuestion {
	return bankQuestion{
		ID:         q.ID,
		Text:       q.Text,
		Kind:       string(q.Kind),
		Options:    q.Options,
		AllowEmpty: q.AllowEmpty,
	}
}

func catalogCmd() *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the embedded question bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Default()
			if err != nil {
				return err
			}

			dump := bankDump{
				Version: cat.Version(),
				Root:    toBankQuestion(cat.Root()),
				Sets:    map[string][]bankQuestion{},
			}
			for _, name := range cat.SetNames() {
				if set != "" && name != set {
					continue
				}
				for _, q := range cat.Set(name) {
					dump.Sets[name] = append(dump.Sets[name], toBankQuestion(q))
				}
			}
			if set != "" && len(dump.Sets) == 0 {
				return fmt.Errorf("unknown question set %q", set)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(dump)
		},
	}

	cmd.Flags().StringVar(&set, "set", "", "only print this question set")
	return cmd
}
