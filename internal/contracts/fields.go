package contracts

// Field identifies one mutable part of a prepared contract. The permission
// tables grant sets of these; anything outside a granted set must compare
// equal to the stored value for an update to pass.
type Field string

const (
	FieldTitle                          Field = "title"
	FieldDescription                    Field = "description"
	FieldVersion                        Field = "version"
	FieldChain                          Field = "chain"
	FieldType                           Field = "type"
	FieldStatus                         Field = "status"
	FieldAddress                        Field = "address"
	FieldImmutableController            Field = "immutableController"
	FieldVisibility                     Field = "visibility"
	FieldController                     Field = "controller"
	FieldDistributors                   Field = "distributors"
	FieldCurrencies                     Field = "currencies"
	FieldIsRecipientsLocked             Field = "isRecipientsLocked"
	FieldRecipients                     Field = "recipients"
	FieldDistribution                   Field = "distribution"
	FieldAutoNativeCurrencyDistribution Field = "autoNativeCurrencyDistribution"
	FieldMinAutoDistributionAmount      Field = "minAutoDistributionAmount"
	FieldLegalAgreementURL              Field = "legalAgreementUrl"
	FieldVisualizationURL               Field = "visualizationUrl"
)

// allFields is the closed set compared during permission validation.
var allFields = []Field{
	FieldTitle,
	FieldDescription,
	FieldVersion,
	FieldChain,
	FieldType,
	FieldStatus,
	FieldAddress,
	FieldImmutableController,
	FieldVisibility,
	FieldController,
	FieldDistributors,
	FieldCurrencies,
	FieldIsRecipientsLocked,
	FieldRecipients,
	FieldDistribution,
	FieldAutoNativeCurrencyDistribution,
	FieldMinAutoDistributionAmount,
	FieldLegalAgreementURL,
	FieldVisualizationURL,
}

// FieldSet is a set of contract fields.
type FieldSet map[Field]struct{}

func NewFieldSet(fields ...Field) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

func (s FieldSet) Add(f Field) {
	s[f] = struct{}{}
}

// Union merges other into a new set.
func (s FieldSet) Union(other FieldSet) FieldSet {
	merged := make(FieldSet, len(s)+len(other))
	for f := range s {
		merged[f] = struct{}{}
	}
	for f := range other {
		merged[f] = struct{}{}
	}
	return merged
}

func (s FieldSet) Empty() bool {
	return len(s) == 0
}
