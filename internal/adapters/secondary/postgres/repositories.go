package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories bundles every repository over one pool.
type Repositories struct {
	Tickets     *TicketRepository
	Workflows   *WorkflowRepository
	Approvals   *ApprovalRepository
	SLAs        *SLARepository
	Definitions *SLADefinitionRepository
	History     *HistoryRepository
	Comments    *CommentRepository
	Activity    *ActivityRepository
	Directory   *UserDirectory
	TxManager   *TransactionManager
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(pool),
		Workflows:   NewWorkflowRepository(pool),
		Approvals:   NewApprovalRepository(pool),
		SLAs:        NewSLARepository(pool),
		Definitions: NewSLADefinitionRepository(pool),
		History:     NewHistoryRepository(pool),
		Comments:    NewCommentRepository(pool),
		Activity:    NewActivityRepository(pool),
		Directory:   NewUserDirectory(pool),
		TxManager:   NewTransactionManager(pool),
	}
}
