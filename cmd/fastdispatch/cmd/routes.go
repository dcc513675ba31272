package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/searchktools/fast-dispatch/app"
)

var routesFormat string

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		nop := zerolog.Nop()
		a := app.New(cfg, app.WithLogger(&nop))
		if err := registerRoutes(a.Engine(), cfg, &nop); err != nil {
			return err
		}
		routes := a.Engine().Router().Routes()

		var out []byte
		switch routesFormat {
		case "yaml", "":
			out, err = yaml.Marshal(routes)
		case "json":
			out, err = json.MarshalIndent(routes, "", "  ")
			out = append(out, '\n')
		default:
			return fmt.Errorf("unknown format %q (want yaml or json)", routesFormat)
		}
		if err != nil {
			return fmt.Errorf("encoding routes: %w", err)
		}

		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	routesCmd.Flags().StringVarP(&routesFormat, "format", "f", "yaml", "output format: yaml or json")
}
