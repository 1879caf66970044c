package contract

// Contracts served by the ledger server.
const (
	ContractMail     = "SealMail"
	ContractIdentity = "Identity"
	ContractStorage  = "Storage"
)

// SealMail methods.
const (
	MethodSend                  = "send"
	MethodAddRecipient          = "addRecipientToEmail"
	MethodMarkAsRead            = "markAsRead"
	MethodMarkAsImportant       = "markAsImportant"
	MethodDeleteMessage         = "deleteMessage"
	MethodGetEmailByID          = "getEmailById"
	MethodGetAllByFrom          = "getAllEmailsByFromAddress"
	MethodGetAllByTo            = "getAllEmailsByToAddress"
	MethodGetAllByCc            = "getAllEmailsByCcAddress"
	MethodGetImportant          = "getImportantEmails"
	MethodGetDeleted            = "getDeletedEmails"
	MethodEmailUserMetadata     = "emailUserMetadata"
	MethodAddEmailFromMigration = "addEmailFromMigration"
	MethodDeploy                = "deploy"
	MethodSchemaVersion         = "schemaVersion"
)

// Identity methods.
const (
	MethodIdentityToOwner     = "identityToOwner"
	MethodPublicKeyByIdentity = "publicKeyByIdentity"
	MethodOwnerToIdentity     = "ownerToIdentity"
)

// Storage methods.
const (
	MethodPresignPut = "presignPut"
	MethodPresignGet = "presignGet"
)

// Ledger events.
const (
	EventEmailCreated   = "EmailCreated"
	EventRecipientAdded = "RecipientAdded"
	EventEmailMigrated  = "EmailMigrated"
)
