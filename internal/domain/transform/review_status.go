package transform

import "github.com/ahrav/codejobs/internal/domain/jobstate"

// ReviewStatus tracks the generated change set's review, independently of the
// job status: a Succeeded job can move through its own review sequence.
type ReviewStatus string

const (
	ReviewStatusNotStarted      ReviewStatus = "NOT_STARTED"
	ReviewStatusPreparingReview ReviewStatus = "PREPARING_REVIEW"
	ReviewStatusInReview        ReviewStatus = "IN_REVIEW"
)

func (s ReviewStatus) String() string { return string(s) }

// Presentation derives the review control's label and icon.
func (s ReviewStatus) Presentation() jobstate.Presentation {
	switch s {
	case ReviewStatusNotStarted:
		return jobstate.Presentation{Label: "Review", Icon: "diff"}
	case ReviewStatusPreparingReview:
		return jobstate.Presentation{Label: "Preparing review", Icon: "loading-spinner"}
	case ReviewStatusInReview:
		return jobstate.Presentation{Label: "Close review", Icon: "close"}
	}
	panic("transform: presentation of unknown review status " + string(s))
}

// ReviewVocabulary is the closed set of review statuses. Preparation may be
// abandoned back to NotStarted.
var ReviewVocabulary = jobstate.NewVocabulary("review",
	ReviewStatusNotStarted,
	[]ReviewStatus{ReviewStatusNotStarted, ReviewStatusPreparingReview, ReviewStatusInReview},
	map[ReviewStatus][]ReviewStatus{
		ReviewStatusNotStarted:      {ReviewStatusPreparingReview},
		ReviewStatusPreparingReview: {ReviewStatusInReview, ReviewStatusNotStarted},
		ReviewStatusInReview:        {ReviewStatusNotStarted},
	},
	ReviewStatus.Presentation,
)

// NewReviewMachine returns a state machine positioned at ReviewStatusNotStarted.
func NewReviewMachine() *jobstate.Machine[ReviewStatus] {
	return jobstate.NewMachine(ReviewVocabulary)
}
