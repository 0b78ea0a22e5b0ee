package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liliang-cn/docchat/internal/api"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "docchat",
	Short:         "Chat with your documents",
	Long:          `docchat ingests uploaded documents into a vector index and answers questions grounded in them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [doc-id]",
	Short: "Chunk, embed and index one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var deleteVectorsCmd = &cobra.Command{
	Use:   "delete-vectors [doc-id]",
	Short: "Remove a document's vectors from the index",
	Long:  `Removes the recorded vectors of a document. Index failures are logged and do not fail the command.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteVectors,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.AddCommand(serveCmd, ingestCmd, deleteVectorsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	router := api.SetupRouter(api.Services{
		Documents: a.documents,
		Ingest:    a.ingest,
		Chat:      a.chat,
	}, api.RouterConfig{
		APIKey:         a.cfg.Admin.APIKey,
		AllowOrigins:   a.cfg.Server.AllowOrigins,
		MaxUploadBytes: a.cfg.RAG.MaxUploadBytes,
	}, a.logger)

	srv := &http.Server{
		Addr:         a.cfg.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: a.cfg.RAG.IngestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting docchat server",
			zap.String("address", a.cfg.Address()),
			zap.String("base_url", a.cfg.Server.BaseURL),
			zap.String("vector_provider", a.cfg.Vector.Provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Server exited")
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RAG.IngestTimeout)
	defer cancel()

	result, err := a.ingest.IngestDocument(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Delegated {
		fmt.Fprintf(out, "%s: %s\n", result.DocumentID, result.Message)
	}
	fmt.Fprintf(out, "Indexed %d chunks for %s\n", result.ChunkCount, result.DocumentID)
	for _, id := range result.VectorIDs {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}

func runDeleteVectors(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.documents.DeleteDocumentVectors(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("document not found: %s", args[0])
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted vectors for %s\n", args[0])
	return nil
}
