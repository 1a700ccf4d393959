// Package cloudpred predicts a patient-level outcome from an unordered set of
// single-cell measurements.
//
// Every patient is a matrix with one row per cell. A diagonal Gaussian
// mixture fit to the pooled training cells turns each patient into a
// signature: the average posterior probability of every mixture component
// over the patient's cells. A polynomial layer scores signatures per outcome
// class, with class 0 as the fixed zero-score reference. In regression mode
// the score of class 1 is the predicted value.
//
// # Training
//
// Train runs three phases:
//
//   - fit the mixture to the pooled training cells (sklearn/mixture)
//   - train the polynomial layer on fixed signatures over a descending
//     learning-rate schedule (RunSchedule), checkpointing on validation loss
//   - hand the classifier to a trainer.Refiner for a final refinement pass
//
// Eval scores a trained Model on held-out patients through the same refiner
// with a zero learning rate, so the model is never modified.
//
// # Quick Start
//
//	train, valid, test := loadSplits() // dataset.Split values
//
//	model, err := cloudpred.Train(train, valid,
//	    cloudpred.WithCenters(5),
//	    cloudpred.WithSeed(42),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := cloudpred.Eval(model, test)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("test loss:", res.Eval.Loss, "auc:", res.Eval.AUC)
//
// # Configuration
//
// Config carries every hyperparameter and can be loaded from YAML with
// LoadConfig or LoadConfigFile; functional options override single fields.
//
// # Observability
//
// Progress is logged through pkg/log, with the run id of each Train call as
// estimator.id. Metrics exposes prometheus collectors for stage epochs, the
// best validation loss per learning rate and the last evaluation loss.
// History.SavePlot renders the schedule's loss curves with gonum/plot.
package cloudpred
