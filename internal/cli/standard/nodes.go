package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellisgw/trellis/internal/cli/client"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <address>",
		Short: "Create or update one node in the hierarchy",
		Long: `Apply writes a single node addressed like "bind:8080/listener:0/http:1".
Without --create the node at the address is replaced; with --create a new
node is appended to the collection the address points into and the trailing
index is ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := gatewaycfg.ParseAddress(args[0])
			if err != nil {
				return err
			}
			value, err := readValue(cmd)
			if err != nil {
				return err
			}
			keep, err := keepFromCmd(cmd)
			if err != nil {
				return err
			}
			revision, err := revisionFromCmd(cmd)
			if err != nil {
				return err
			}
			create, err := cmd.Flags().GetBool("create")
			if err != nil {
				return err
			}

			// Creating a bind takes the port from the address when the
			// payload leaves it out.
			if create && addr.NodeType() == gatewaycfg.NodeBind {
				if _, ok := value["port"]; !ok {
					value["port"] = addr.Port
				}
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if create {
				res, err := api.CreateNode(ctx, addr, value, keep, revision)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s node (revision %s)\n", addr.NodeType(), res.Revision)
				return nil
			}
			res, err := api.UpdateNode(ctx, addr, value, keep, revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (revision %s)\n", addr, res.Revision)
			return nil
		},
	}
	cmd.Flags().Bool("create", false, "append a new node instead of replacing the addressed one")
	cmd.Flags().StringP("file", "f", "", "JSON file with the node value (use - for stdin)")
	cmd.Flags().String("value", "", "inline JSON object with the node value")
	cmd.Flags().StringSlice("keep", nil, "top-level keys to retain from the existing node")
	cmd.Flags().String("revision", "", "reject the edit unless the server is still at this revision")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <address>",
		Short: "Print one annotated node from the hierarchy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := gatewaycfg.ParseAddress(args[0])
			if err != nil {
				return err
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			snap, err := api.Hierarchy(ctx)
			if err != nil {
				return err
			}
			node, err := lookupNode(snap, addr)
			if err != nil {
				return err
			}
			return encodeAsJSON(cmd.OutOrStdout(), node)
		},
	}
}

// lookupNode walks the annotated tree to the addressed node.
func lookupNode(snap *client.Snapshot, addr gatewaycfg.Address) (any, error) {
	for i := range snap.Tree.Binds {
		bind := &snap.Tree.Binds[i]
		if bind.Port != addr.Port {
			continue
		}
		if addr.NodeType() == gatewaycfg.NodeBind {
			return bind, nil
		}
		if addr.Listener >= len(bind.Listeners) {
			break
		}
		listener := &bind.Listeners[addr.Listener]
		if addr.NodeType() == gatewaycfg.NodeListener {
			return listener, nil
		}
		for j := range listener.Routes {
			route := &listener.Routes[j]
			if route.Kind != addr.RouteKind || route.Index != addr.Route {
				continue
			}
			if addr.NodeType() == gatewaycfg.NodeRoute {
				return route, nil
			}
			if addr.Backend < len(route.Backends) {
				return &route.Backends[addr.Backend], nil
			}
		}
		break
	}
	return nil, fmt.Errorf("no node at %s in the current tree", addr)
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <address>",
		Short: "Delete one node and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := gatewaycfg.ParseAddress(args[0])
			if err != nil {
				return err
			}
			revision, err := revisionFromCmd(cmd)
			if err != nil {
				return err
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			res, err := api.DeleteNode(ctx, addr, revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (revision %s)\n", addr, res.Revision)
			return nil
		},
	}
	cmd.Flags().String("revision", "", "reject the delete unless the server is still at this revision")
	return cmd
}
