//go:build system

package system_test

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"correction-workflow/internal/domain"
	"correction-workflow/internal/storage"
)

var _ = Describe("System blackbox approval path", Ordered, func() {
	var (
		cfg     systemTestConfig
		db      *sql.DB
		fixture seedFixture
	)

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		repoRoot, err := findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/healthz", http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/readyz", http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
		Expect(applyMigration(repoRoot, cfg.PostgresDSN)).To(Succeed())

		db, err = sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(db.Close)

		fixture = newSeedFixture(strconv.FormatInt(time.Now().UnixNano(), 36))
		Expect(seed(db, fixture)).To(Succeed())
	})

	It("rejects requests without an actor", func() {
		resp, err := applyAction(cfg.APIBaseURL, fixture.DocumentID, "", "approve")
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusUnauthorized))
	})

	It("forbids a user who holds no matching role", func() {
		resp, err := applyAction(cfg.APIBaseURL, fixture.DocumentID, fixture.Requester, "approve")
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusForbidden))
	})

	It("moves the document through both stages over HTTP", func() {
		By("listing actions for the department head")
		resp, err := callAPI(http.MethodGet, cfg.APIBaseURL+"/v1/documents/"+fixture.DocumentID+"/actions", fixture.HoD, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusOK))
		var listed struct {
			Actions []domain.Action `json:"actions"`
		}
		Expect(resp.decode(&listed)).To(Succeed())
		Expect(listed.Actions).To(ContainElement(HaveField("Name", "approve")))

		By("approving the first stage")
		resp, err = applyAction(cfg.APIBaseURL, fixture.DocumentID, fixture.HoD, "approve")
		Expect(err).ToNot(HaveOccurred())
		first, err := outcomeOf(resp)
		Expect(err).ToNot(HaveOccurred())
		Expect(first.Outcome).To(Equal(domain.OutcomeAdvanced))
		Expect(first.State).To(Equal("checked"))
		Expect(first.ContinuationToken).ToNot(BeNil())

		By("approving the second stage through the continuation token")
		resp, err = applyWithToken(cfg.APIBaseURL, *first.ContinuationToken, fixture.Finance, "approve")
		Expect(err).ToNot(HaveOccurred())
		waiting, err := outcomeOf(resp)
		Expect(err).ToNot(HaveOccurred())
		Expect(waiting.Outcome).To(Equal(domain.OutcomeWaiting))
		Expect(waiting.Satisfied).To(Equal(1))
		Expect(waiting.Required).To(Equal(2))

		By("repeating the same approval without moving the quorum")
		resp, err = applyWithToken(cfg.APIBaseURL, *first.ContinuationToken, fixture.Finance, "approve")
		Expect(err).ToNot(HaveOccurred())
		again, err := outcomeOf(resp)
		Expect(err).ToNot(HaveOccurred())
		Expect(again.Outcome).To(Equal(domain.OutcomeWaiting))
		Expect(again.Satisfied).To(Equal(1))

		By("completing the second stage")
		resp, err = applyAction(cfg.APIBaseURL, fixture.DocumentID, fixture.Accountant, "approve")
		Expect(err).ToNot(HaveOccurred())
		closed, err := outcomeOf(resp)
		Expect(err).ToNot(HaveOccurred())
		Expect(closed.Outcome).To(Equal(domain.OutcomeAdvanced))
		Expect(closed.State).To(Equal("closed"))
		Expect(closed.ContinuationToken).To(BeNil())

		By("refusing further actions on the closed document")
		resp, err = applyAction(cfg.APIBaseURL, fixture.DocumentID, fixture.Accountant, "approve")
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusConflict))

		By("invalidating the spent token")
		resp, err = applyWithToken(cfg.APIBaseURL, *first.ContinuationToken, fixture.Accountant, "approve")
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusForbidden))
	})

	It("records history and audit rows in Postgres", func() {
		approvers, err := fetchStringRows(db, `SELECT user_id FROM approval_history WHERE document_id = $1 ORDER BY id`, fixture.DocumentID)
		Expect(err).ToNot(HaveOccurred())
		Expect(approvers).To(Equal([]string{fixture.HoD, fixture.Finance, fixture.Accountant}))

		names, err := auditNames(db, fixture.DocumentID)
		Expect(err).ToNot(HaveOccurred())
		Expect(names).To(ContainElement(domain.AuditAdvanced))
		Expect(names).To(ContainElement(domain.AuditWaiting))
	})

	It("delivers notifications through the worker", func() {
		By("waiting for in-app notifications for every recipient")
		var rows []notificationRow
		Eventually(func() []string {
			var err error
			rows, err = fetchNotifications(db, fixture.DocumentID)
			Expect(err).ToNot(HaveOccurred())
			return userIDs(rows)
		}, cfg.NotificationTimeout, cfg.NotificationInterval).Should(ContainElements(fixture.Finance, fixture.Accountant, fixture.Requester))

		closedEvent := eventFor(rows, fixture.Requester)
		Expect(closedEvent).ToNot(BeEmpty())

		By("checking the notification workflow ran both activities")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		workflowID := cfg.NotifyIDPrefix + closedEvent
		Expect(temporalClient.GetWorkflow(context.Background(), workflowID, "").Get(context.Background(), nil)).To(Succeed())

		trace, err := collectActivityTrace(context.Background(), temporalClient, workflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(trace.CompletedOrder).To(Equal(cfg.ExpectedActivityOrder))
		Expect(trace.EmailOutput.ObjectKey).To(Equal(storage.MessageKey(fixture.DocumentID, closedEvent)))
		Expect(trace.EmailOutput.Recipients).To(Equal(1))

		By("reading the rendered message from the mail drop")
		mail, err := storage.NewMailDrop(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, false, cfg.MinioBucket)
		Expect(err).ToNot(HaveOccurred())

		msg, err := mail.GetMessage(context.Background(), trace.EmailOutput.ObjectKey)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(msg)).To(ContainSubstring("To: " + fixture.Requester + "@example.com"))
		Expect(string(msg)).To(ContainSubstring("Approved and closed: " + fixture.DocumentID))
	})
})
