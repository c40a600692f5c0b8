// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gbm provides gradient boosted decision trees trained over one or
// more simulated accelerator devices.
//
// # Overview
//
// This package contains:
//   - Param: training parameters with YAML loading
//   - DataSet: sparse training data from LibSVM files or dense matrices
//   - Train: boosting rounds split column-wise across devices
//   - Predict: host-side prediction with a trained model
//   - Save/Load: model files with a SHA-256 checked data section
//
// # Basic Usage
//
//	import "github.com/born-ml/boost/gbm"
//
//	func main() {
//	    ds, err := gbm.LoadLibSVM("train.libsvm")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    p := gbm.DefaultParam()
//	    p.NDevice = 2
//	    p.Objective = "binary:logistic"
//
//	    res, err := gbm.Train(context.Background(), ds, p)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    prob, err := gbm.Predict(res.Model, ds)
//	}
//
// # Tree methods
//
// "exact" tries every distinct feature value as a threshold. "hist" (and
// "auto") restricts thresholds to at most max_num_bin cuts per feature.
//
// # Objectives
//
//   - reg:linear, reg:squarederror: squared loss, metric rmse
//   - reg:logistic, binary:logistic: log loss, metric error
//   - multi:softmax, multi:softprob: softmax loss, metric merror
package gbm
