package reconcile

// IssueCode identifies a kind of drift between local and remote state.
type IssueCode string

const (
	IssueMissingProduct      IssueCode = "missing_product"
	IssueProductNotFound     IssueCode = "product_not_found"
	IssueProductInactive     IssueCode = "product_inactive"
	IssueMetadataMismatch    IssueCode = "metadata_mismatch"
	IssueMissingPrice        IssueCode = "missing_price"
	IssuePriceNotFound       IssueCode = "price_not_found"
	IssuePriceInactive       IssueCode = "price_inactive"
	IssuePriceMismatch       IssueCode = "price_mismatch"
	IssueMissingRemote       IssueCode = "missing_remote_subscription"
	IssueCustomerNotFound    IssueCode = "customer_not_found"
	IssueSubscriptionMissing IssueCode = "remote_subscription_not_found"
	IssueStatusMismatch      IssueCode = "status_mismatch"
	IssueSyncPending         IssueCode = "sync_pending"
	IssueRemoteError         IssueCode = "remote_error"
)

// Issue is a single drift finding.
type Issue struct {
	Code    IssueCode
	Message string
}

// ValidationResult is the read-only outcome of a validation pass.
type ValidationResult struct {
	Issues          []Issue
	Recommendations []string
	Synchronized    bool
}

func (r *ValidationResult) add(code IssueCode, msg, recommendation string) {
	r.Issues = append(r.Issues, Issue{Code: code, Message: msg})
	if recommendation == "" {
		return
	}
	for _, existing := range r.Recommendations {
		if existing == recommendation {
			return
		}
	}
	r.Recommendations = append(r.Recommendations, recommendation)
}

// Has reports whether the result contains an issue with code.
func (r *ValidationResult) Has(code IssueCode) bool {
	for _, is := range r.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func (r *ValidationResult) finish() *ValidationResult {
	r.Synchronized = len(r.Issues) == 0
	return r
}

// Recommendations emitted by validation.
const (
	RecommendSynchronizePlan    = "synchronize the plan to create or update its remote product and prices"
	RecommendRepairPlan         = "repair the plan to recreate its remote product and prices"
	RecommendPushStatus         = "synchronize the subscription status with the gateway"
	RecommendRepairSubscription = "repair the subscription to recreate its remote counterpart"
)
