package main

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {

	var listenAddr string
	var hospitalID string

	var rootCmd = &cobra.Command{
		Use: "emr-connector",
	}

	var dbSyncCmd = &cobra.Command{
		Use:   "db_sync",
		Short: "Sync observations from every configured source database",
		Run: func(cmd *cobra.Command, args []string) {
			startPooledSync(listenAddr)
		},
	}

	var hospitalSyncCmd = &cobra.Command{
		Use:   "hospital_sync",
		Short: "Sync observations from a single source database",
		Run: func(cmd *cobra.Command, args []string) {
			startSingleHospitalSync(listenAddr, hospitalID)
		},
	}

	var restSyncCmd = &cobra.Command{
		Use:   "rest_sync",
		Short: "Sync observations from a source exposed over a REST web service",
		Run: func(cmd *cobra.Command, args []string) {
			startRestSync(listenAddr)
		},
	}

	rootCmd.AddCommand(dbSyncCmd)
	dbSyncCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", ":8081", "Hostname:port")

	rootCmd.AddCommand(hospitalSyncCmd)
	hospitalSyncCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", ":8081", "Hostname:port")
	hospitalSyncCmd.Flags().StringVarP(&hospitalID, "hospital-id", "i", "", "Hospital id to sync")
	hospitalSyncCmd.MarkFlagRequired("hospital-id")

	rootCmd.AddCommand(restSyncCmd)
	restSyncCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", ":8081", "Hostname:port")

	return rootCmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
