package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

// Jobs gained a configurable saliency layer, results record which class the
// overlay explains.
type Job struct {
	Layer string
}

type JobResult struct {
	ExplainedClass int
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Job{}, "Layer"); err != nil {
		return fmt.Errorf("error adding Layer column: %w", err)
	}
	if err := db.Migrator().AddColumn(&JobResult{}, "ExplainedClass"); err != nil {
		return fmt.Errorf("error adding ExplainedClass column: %w", err)
	}
	if err := db.Model(&JobResult{}).
		Where("explained_class IS NULL").
		Update("explained_class", 0).Error; err != nil {
		return fmt.Errorf("error setting default value for ExplainedClass: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&Job{}, "Layer"); err != nil {
		return fmt.Errorf("error dropping Layer column: %w", err)
	}
	if err := db.Migrator().DropColumn(&JobResult{}, "ExplainedClass"); err != nil {
		return fmt.Errorf("error dropping ExplainedClass column: %w", err)
	}
	return nil
}
